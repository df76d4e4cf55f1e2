package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fridaysatfour/wingman/internal/ai"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/logging"
)

// summaryPrompt is the instruction handed to the provider together with
// the transcript of the messages being compressed.
const summaryPrompt = `You are compressing an old stretch of a coaching conversation into long-term memory.

Write a short summary (at most 200 words) covering:
- what the member is working on and why it matters to them
- decisions made and commitments given
- open threads the coach should pick back up later

Write plain prose, no headings, no bullet points. Respond with the summary only.`

// Summarizer compresses the oldest live messages of a thread into a
// BufferSummary once the buffer fills. It runs detached from the turn
// that triggered it; failures are logged and left for the catch-up
// sweep, never surfaced to the user.
type Summarizer struct {
	store      *db.Store
	provider   ai.Provider
	bufferSize int

	// inFlight marks threads with a summarization run in progress so
	// rapid repeat triggers cannot enqueue duplicate work.
	inFlight sync.Map // threadID -> struct{}
}

// NewSummarizer creates a summarizer over the shared database.
func NewSummarizer(store *db.Store, provider ai.Provider, bufferSize int) *Summarizer {
	return &Summarizer{
		store:      store,
		provider:   provider,
		bufferSize: bufferSize,
	}
}

// Schedule starts a fire-and-forget summarization for the thread. The
// calling turn has already been answered by the time this runs, so
// errors are only observable in the logs.
func (s *Summarizer) Schedule(userID, threadID string) {
	go func() {
		if err := s.Summarize(context.Background(), userID, threadID); err != nil {
			logging.Errorf("[summarizer] background run failed for thread %s: %v", threadID, err)
		}
	}()
}

// Summarize compresses the thread's live messages if the buffer
// threshold still holds. Stale triggers (another run already landed)
// return nil without doing work.
func (s *Summarizer) Summarize(ctx context.Context, userID, threadID string) error {
	return s.summarize(ctx, userID, threadID, s.bufferSize)
}

// ForceSummarize compresses whatever live messages the thread has,
// ignoring the buffer threshold. Used by the manual CLI trigger.
func (s *Summarizer) ForceSummarize(ctx context.Context, userID, threadID string) error {
	return s.summarize(ctx, userID, threadID, 1)
}

func (s *Summarizer) summarize(ctx context.Context, userID, threadID string, minCount int) error {
	if _, busy := s.inFlight.LoadOrStore(threadID, struct{}{}); busy {
		logging.Debugf("[summarizer] thread %s already in flight, skipping", threadID)
		return nil
	}
	defer s.inFlight.Delete(threadID)

	// Re-check under the marker: the snapshot that triggered us may
	// already be covered by a run that finished in the meantime.
	live, err := s.store.LiveThreadMessages(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to load live messages: %w", err)
	}
	if len(live) < minCount {
		return nil
	}

	text, err := s.provider.Complete(ctx, &ai.Request{
		System:    summaryPrompt,
		Messages:  []ai.Message{{Role: "user", Content: Transcript(live)}},
		MaxTokens: 400,
	})
	if err != nil {
		return fmt.Errorf("summarization call failed: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("summarization returned empty text")
	}

	if _, err := s.store.CreateBufferSummary(ctx, db.CreateBufferSummaryParams{
		UserID:         userID,
		ThreadID:       threadID,
		Summary:        text,
		MessageCount:   len(live),
		FirstMessageID: live[0].ID,
		LastMessageID:  live[len(live)-1].ID,
	}); err != nil {
		return fmt.Errorf("failed to store buffer summary: %w", err)
	}

	logging.Infof("[summarizer] compressed %d messages for thread %s", len(live), threadID)
	return nil
}

// Transcript renders messages oldest-first as summarization input.
func Transcript(msgs []db.Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		if msg.Content == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s]: %s\n\n", msg.Role, msg.Content))
	}
	return sb.String()
}
