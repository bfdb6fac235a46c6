package slowpath

import (
	"context"
	"fmt"

	"devtel/internal/model"
	"devtel/pkg/fastpath"
	"devtel/pkg/logger"
	"devtel/pkg/metrics"
	"devtel/pkg/store/mysql"
)

// MetricsHandler derives productivity metrics from durably stored traces.
// It resolves each CDC pointer back to the compressed row, decompresses it
// and feeds the event through the metrics calculator.
type MetricsHandler struct {
	traces     *mysql.TraceRepository
	calculator *metrics.Calculator
	storage    *metrics.Storage
}

// NewMetricsHandler creates the metrics specialization of the slow path.
func NewMetricsHandler(traces *mysql.TraceRepository, calculator *metrics.Calculator, storage *metrics.Storage) *MetricsHandler {
	return &MetricsHandler{
		traces:     traces,
		calculator: calculator,
		storage:    storage,
	}
}

// ProcessEvent fetches the referenced trace, decompresses it and records
// the derived metrics. A missing row is not an error: the pointer may
// outlive its trace under retention, so the message is logged and dropped.
func (h *MetricsHandler) ProcessEvent(ctx context.Context, pointer *model.CDCPointer) error {
	if pointer.Sequence <= 0 {
		return Permanent(fmt.Errorf("pointer missing sequence (event_id %s)", pointer.EventID))
	}

	trace, err := h.traces.GetBySequence(ctx, pointer.Sequence)
	if err != nil {
		return fmt.Errorf("fetch trace %d: %w", pointer.Sequence, err)
	}
	if trace == nil {
		logger.Warnf("trace %d not found for event %s, skipping", pointer.Sequence, pointer.EventID)
		return nil
	}

	event, err := fastpath.DecompressEvent(trace.EventData)
	if err != nil {
		// A corrupt blob never decompresses on retry.
		return Permanent(fmt.Errorf("decompress trace %d: %w", pointer.Sequence, err))
	}

	derived, err := h.calculator.CalculateForEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("calculate metrics for %s: %w", event.EventID, err)
	}

	for _, m := range derived {
		if err := h.storage.Record(ctx, m); err != nil {
			return fmt.Errorf("record metric %s/%s: %w", m.Category, m.Name, err)
		}
	}
	return nil
}
