package a2dpsink

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// jobSlot runs at most one job at a time. Submissions that arrive while a
// job is running collapse into a single rerun of the latest one once it
// returns, so a burst of device events is handled with the latest device
// state and never queues up.
type jobSlot struct {
	name    string
	sem     *semaphore.Weighted
	pending atomic.Pointer[func()]
	wg      sync.WaitGroup
}

func newJobSlot(name string) *jobSlot {
	return &jobSlot{name: name, sem: semaphore.NewWeighted(1)}
}

// Submit runs fn on its own goroutine. It reports false when a job was
// already running and fn was left for that goroutine to run next.
func (j *jobSlot) Submit(fn func()) bool {
	// Counted and published before the slot is tried, so that Wait covers
	// the job and a runner about to release sees it.
	j.wg.Add(1)
	j.pending.Store(&fn)

	if !j.sem.TryAcquire(1) {
		j.wg.Done()
		logrus.WithFields(logrus.Fields{
			"function": "jobSlot.Submit",
			"job":      j.name,
		}).Debug("Job running, coalesced")
		return false
	}

	go j.run()
	return true
}

func (j *jobSlot) run() {
	defer j.wg.Done()
	for {
		for next := j.pending.Swap(nil); next != nil; next = j.pending.Swap(nil) {
			(*next)()
		}
		j.sem.Release(1)

		// A submitter that failed TryAcquire just before the release left
		// its job pending. If another submitter took the slot instead, that
		// one runs it.
		if j.pending.Load() == nil || !j.sem.TryAcquire(1) {
			return
		}
	}
}

// Wait blocks until no job is running or pending.
func (j *jobSlot) Wait() {
	j.wg.Wait()
}
