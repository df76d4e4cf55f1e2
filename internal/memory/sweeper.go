package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/logging"
)

// Sweeper is the summarization catch-up job. The fire-and-forget
// trigger in the message store is best-effort: if the process restarts
// or the provider call fails, the thread sits over the threshold with
// no retry scheduled. The sweeper periodically finds those threads and
// re-schedules them.
type Sweeper struct {
	store      *db.Store
	summarizer *Summarizer
	threshold  int
	cron       *cron.Cron
}

// NewSweeper creates a sweeper over the shared database.
func NewSweeper(store *db.Store, summarizer *Summarizer, threshold int) *Sweeper {
	return &Sweeper{
		store:      store,
		summarizer: summarizer,
		threshold:  threshold,
	}
}

// Start begins sweeping at the given interval.
func (s *Sweeper) Start(interval time.Duration) error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c
	logging.Infof("[sweeper] summarization catch-up running every %s", interval)
	return nil
}

// Stop halts the sweep schedule. In-flight summarizations finish on
// their own; they are short-lived and self-contained.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// Sweep runs one pass: every thread at or over the threshold gets a
// summarization scheduled. The summarizer's in-flight marker and live
// count re-check make redundant passes harmless.
func (s *Sweeper) Sweep() {
	refs, err := s.store.ThreadsAtThreshold(context.Background(), s.threshold)
	if err != nil {
		logging.Warnf("[sweeper] thread scan failed: %v", err)
		return
	}
	for _, ref := range refs {
		s.summarizer.Schedule(ref.UserID, ref.ThreadID)
	}
	if len(refs) > 0 {
		logging.Infof("[sweeper] re-scheduled summarization for %d thread(s)", len(refs))
	}
}
