package main

import (
	"time"

	"devtel/internal/jobs"
)

const productivityInterval = time.Minute

// initJobs registers periodic background jobs
func (app *Application) initJobs() error {
	app.jobsManager = jobs.NewManager(app.ctx)

	app.jobsManager.Register(jobs.NewProductivityJob(app.calculator, app.storage, productivityInterval))
	app.jobsManager.Register(jobs.NewRetentionJob(app.mysqlRepo.Trace, app.config.Retention.TraceDays))

	return nil
}
