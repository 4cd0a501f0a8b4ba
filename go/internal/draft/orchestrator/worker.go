package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Run starts the timeout worker pool and blocks until ctx is cancelled.
// Armed timers are stopped on the way out.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.numWorkers).
		Int("turn_seconds", o.turnSeconds).
		Msg("draft orchestrator started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.numWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	<-ctx.Done()
	log.Info().Str("instance", o.instanceID).Msg("orchestrator shutdown requested")

	o.timer.Stop()
	o.quitOnce.Do(func() { close(o.quit) })

	log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
	cancelWorkers()
	wg.Wait()
	log.Info().Str("instance", o.instanceID).Msg("all workers shut down")

	return nil
}

// enqueue hands a fired timer's job to the worker pool. It blocks while the
// queue is full so that no expired turn is lost.
func (o *Orchestrator) enqueue(job TimeoutJob) {
	select {
	case o.workCh <- job:
		log.Debug().Str("draft_id", job.DraftID).Int("step", job.Step).Msg("timeout enqueued for processing")
	case <-o.quit:
		log.Debug().Str("draft_id", job.DraftID).Msg("timeout dropped during shutdown")
	}
}

// worker processes turn timeouts from the work channel
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Debug().
		Str("instance", o.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case job := <-o.workCh:
			if err := o.OnTurnTimeout(ctx, job); err != nil {
				log.Error().
					Err(err).
					Str("draft_id", job.DraftID).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("worker timeout handling failed")
			}
		}
	}
}
