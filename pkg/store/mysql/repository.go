package mysql

// Repository aggregates the MySQL-side repositories over one datastore.
// The durable event log only needs traces today; the aggregate keeps
// the wiring shape stable if more tables are added.
type Repository struct {
	ds *Datastore

	Trace *TraceRepository
}

// NewRepository opens the datastore and builds the sub-repositories.
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ds:    ds,
		Trace: NewTraceRepository(ds),
	}, nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
