package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/pkg/jobs"
)

type refreshPayload struct {
	SessionID string
	SchoolID  string
}

// AnalyticsRefreshWorker rebuilds cached aggregates off the request path.
// It satisfies the transition listener contract of EnquiryService and
// SessionService: every committed transition enqueues a refresh job.
type AnalyticsRefreshWorker struct {
	analytics *AnalyticsService
	queue     *jobs.Queue
	logger    *zap.Logger
	seq       uint64
}

// NewAnalyticsRefreshWorker builds the worker and its backing queue.
func NewAnalyticsRefreshWorker(analytics *AnalyticsService, workers int, logger *zap.Logger) *AnalyticsRefreshWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &AnalyticsRefreshWorker{analytics: analytics, logger: logger}
	w.queue = jobs.NewQueue("analytics-refresh", w.handle, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	return w
}

// Start launches the queue workers.
func (w *AnalyticsRefreshWorker) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop drains the queue workers.
func (w *AnalyticsRefreshWorker) Stop() {
	w.queue.Stop()
}

// TransitionCommitted enqueues a cache refresh for the touched session. A
// full queue only costs staleness until the next read repopulates the cache.
func (w *AnalyticsRefreshWorker) TransitionCommitted(sessionID, schoolID string) {
	job := jobs.Job{
		ID:      fmt.Sprintf("refresh-%d", atomic.AddUint64(&w.seq, 1)),
		Type:    "analytics_refresh",
		Payload: refreshPayload{SessionID: sessionID, SchoolID: schoolID},
	}
	if err := w.queue.Enqueue(job); err != nil {
		w.logger.Warn("failed to enqueue analytics refresh", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (w *AnalyticsRefreshWorker) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(refreshPayload)
	if !ok {
		w.logger.Warn("unexpected refresh payload", zap.String("job_id", job.ID))
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return w.analytics.RefreshSession(ctx, payload.SessionID, payload.SchoolID)
}
