package jobs

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerCancelAndWait(t *testing.T) {
	t.Run("finishes fast enough", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Millisecond*200),
		}

		before := time.Now()
		unfinished := testJobs.CancelAndWait(time.Second * 1)
		after := time.Now()
		assert.WithinDuration(t, after, before, time.Millisecond*500, "tracker.Finish did not finish fast enough")
		assert.Len(t, unfinished, 0)
	})
	t.Run("reports unfinished jobs", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Second*10),
		}

		unfinished := testJobs.CancelAndWait(time.Second * 1)
		assert.Equal(t, []string{"Job B"}, unfinished)
	})
}

func TestDeferred(t *testing.T) {
	t.Run("runs tasks after the delay", func(t *testing.T) {
		d := NewDeferred()
		var ran atomic.Bool
		d.Defer("test task", time.Millisecond*50, func() {
			ran.Store(true)
		})

		time.Sleep(time.Millisecond * 10)
		assert.False(t, ran.Load())
		time.Sleep(time.Millisecond * 100)
		assert.True(t, ran.Load())
		assert.True(t, d.Shutdown(time.Second))
	})
	t.Run("drops pending tasks on shutdown", func(t *testing.T) {
		d := NewDeferred()
		var ran atomic.Bool
		d.Defer("never runs", time.Second*10, func() {
			ran.Store(true)
		})

		assert.True(t, d.Shutdown(time.Second))
		assert.False(t, ran.Load())
	})
	t.Run("contains panics", func(t *testing.T) {
		d := NewDeferred()
		d.Defer("panicky", 0, func() {
			panic("oh no")
		})
		assert.True(t, d.Shutdown(time.Second))
	})
}

func FakeJob(name string, timeout time.Duration) *Job {
	job := New(name)
	go func() {
		<-job.Ctx.Done()
		timer := time.NewTimer(timeout)
		<-timer.C
		job.Finish()
	}()
	return job
}
