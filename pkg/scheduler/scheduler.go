package scheduler

import (
	"context"

	"github.com/chris/invoice-settlement/pkg/models"
)

// Scheduler defines the interface for a component that queues a settlement run for later processing.
type Scheduler interface {
	// ScheduleSettlement enqueues a consolidation request for asynchronous processing.
	ScheduleSettlement(ctx context.Context, req models.ConsolidationRequest) error
}
