// Package batch renders many computations' fused kernel source
// concurrently, fanning work out across a fixed worker pool the way a
// CLI batch job would: one goroutine per worker, ordered results, per-job
// errors that do not stop the other jobs, cancellation through the caller's
// context, and per-job RED metrics alongside the batch-level trace span.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kerngraph/kerngraph/pkg/codegen"
	"github.com/kerngraph/kerngraph/pkg/observability"
	"github.com/kerngraph/kerngraph/pkg/ttree"
)

const opRenderJob = "batch.render_job"

const (
	statusOK    = "ok"
	statusError = "error"
)

var (
	tracer = otel.Tracer("github.com/kerngraph/kerngraph/pkg/batch")
	meter  = otel.Meter("github.com/kerngraph/kerngraph/pkg/batch")

	redMetrics = mustREDMetrics(meter)
)

func mustREDMetrics(m metric.Meter) *observability.REDMetrics {
	rm, err := observability.NewREDMetrics(m)
	if err != nil {
		panic(fmt.Errorf("batch: building RED metrics: %w", err))
	}

	return rm
}

// Job is one computation to render: its transformation tree and the base
// (or leaf) names to fuse code for, matching codegen.TransformationsFor's
// arguments.
type Job struct {
	Label string
	Tree  *ttree.Tree
	Names []string
}

// Result is one Job's rendered source, or the error it failed with.
type Result struct {
	Label  string
	Source string
	Err    error
}

// Render runs every job through codegen.TransformationsFor across up to
// workers goroutines (runtime.NumCPU() if workers <= 0, or len(jobs) if
// that is smaller), returning one Result per job in input order.
//
// Render does not stop early on a job's failure — a batch is a reporting
// tool, not a pipeline, so every job gets a chance to run and every
// failure is visible in its own Result. Cancel ctx to abort remaining
// work early.
func Render(ctx context.Context, jobs []Job, workers int) ([]Result, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if workers > len(jobs) {
		workers = len(jobs)
	}

	ctx, span := tracer.Start(ctx, "batch.Render", trace.WithAttributes(
		attribute.Int("kerngraph.batch.job_count", len(jobs)),
		attribute.Int("kerngraph.batch.workers", workers),
	))
	defer span.End()

	results := make([]Result, len(jobs))
	jobCh := make(chan int, workers)

	var wg sync.WaitGroup

	var canceled atomic.Bool

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for idx := range jobCh {
				if canceled.Load() {
					results[idx] = Result{Label: jobs[idx].Label, Err: context.Canceled}
					continue
				}

				select {
				case <-ctx.Done():
					canceled.Store(true)
					results[idx] = Result{Label: jobs[idx].Label, Err: ctx.Err()}

					continue
				default:
				}

				start := time.Now()
				stopInflight := redMetrics.TrackInflight(ctx, opRenderJob)

				src, err := codegen.TransformationsFor(jobs[idx].Tree, jobs[idx].Names)
				if err != nil {
					err = fmt.Errorf("rendering job %q: %w", jobs[idx].Label, err)
				}

				stopInflight()

				status := statusOK
				if err != nil {
					status = statusError
				}

				redMetrics.RecordRequest(ctx, opRenderJob, status, time.Since(start))

				results[idx] = Result{Label: jobs[idx].Label, Source: src, Err: err}
			}
		}()
	}

	for i := range jobs {
		jobCh <- i
	}

	close(jobCh)
	wg.Wait()

	span.SetAttributes(attribute.Int("kerngraph.batch.failed", countFailed(results)))

	return results, ctx.Err()
}

func countFailed(results []Result) int {
	n := 0

	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}

	return n
}
