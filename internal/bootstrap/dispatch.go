package bootstrap

import (
	"context"
	"sync"

	"github.com/ivioje/globe-scholars/internal/queue"
	"github.com/ivioje/globe-scholars/internal/shared/metrics"
	"github.com/ivioje/globe-scholars/internal/shared/telemetry"
	"github.com/ivioje/globe-scholars/internal/workerproc"
)

// inlineDispatcher runs conversion jobs on background goroutines in the API
// process. It stands in for SQS during local development.
type inlineDispatcher struct {
	processor workerproc.Processor
	wg        sync.WaitGroup
}

func newInlineDispatcher(processor workerproc.Processor) *inlineDispatcher {
	return &inlineDispatcher{processor: processor}
}

// Send hands the job to a goroutine detached from the request context.
func (d *inlineDispatcher) Send(ctx context.Context, msg queue.Message) error {
	jobCtx := workerproc.WithParsedMessage(context.WithoutCancel(ctx), msg)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		metrics.IncConversionJobsReceived()
		if err := workerproc.HandleMessage(jobCtx, d.processor, ""); err != nil {
			telemetry.Error("worker.conversion.failed", map[string]any{
				"work_id":    msg.WorkID,
				"request_id": msg.RequestID,
				"error":      err.Error(),
			})
		}
	}()
	return nil
}

// Wait blocks until every dispatched job finished.
func (d *inlineDispatcher) Wait() {
	d.wg.Wait()
}

var _ queue.Client = (*inlineDispatcher)(nil)
