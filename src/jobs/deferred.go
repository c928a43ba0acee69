package jobs

import (
	"sync"
	"time"

	"git.quorum.forum/qf/qf/src/logging"
	"git.quorum.forum/qf/qf/src/utils"
	"github.com/google/uuid"
)

// Deferred runs one-off tasks after a delay, e.g. sending notification emails
// a short while after the triggering activity so that rapid edits collapse
// into one message. Tasks run on their own goroutines and are tracked so the
// runner can be shut down gracefully.
//
// Tasks must tolerate the world changing underneath them: a task that fires
// after its triggering post was deleted should notice and return without
// side effects.
type Deferred struct {
	job *Job
	wg  sync.WaitGroup
}

func NewDeferred() *Deferred {
	return &Deferred{
		job: New("deferred tasks"),
	}
}

// Schedules task to run after the given delay. The task receives the runner's
// context, which is canceled on shutdown. If the runner shuts down before the
// delay elapses, the task is dropped.
func (d *Deferred) Defer(name string, delay time.Duration, task func()) {
	taskID := uuid.New()
	logger := d.job.Logger.With().
		Str("task", name).
		Stringer("taskId", taskID).
		Logger()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer logging.LogPanics(&logger)

		if err := utils.SleepContext(d.job.Ctx, delay); err != nil {
			logger.Debug().Msg("dropping deferred task on shutdown")
			return
		}

		logger.Debug().Msg("running deferred task")
		task()
	}()
}

// Cancels pending tasks and waits for running ones to finish. Returns false
// if the timeout expired with tasks still running.
func (d *Deferred) Shutdown(timeout time.Duration) bool {
	d.job.Cancel()
	go func() {
		d.wg.Wait()
		d.job.Finish()
	}()

	select {
	case <-d.job.Finished():
		return true
	case <-time.After(timeout):
		return false
	}
}
