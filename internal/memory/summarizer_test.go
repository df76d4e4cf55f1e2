package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fridaysatfour/wingman/internal/ai"
)

// fakeProvider returns canned completions and counts calls.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req *ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seedThread(t *testing.T, m *MessageStore, threadID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := m.AddMessage(context.Background(), "u1", threadID, "user", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("seed message %d failed: %v", i, err)
		}
	}
}

func TestSummarizeCompressesLiveMessages(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	provider := &fakeProvider{reply: "they are writing a novel and committed to daily pages"}
	s := NewSummarizer(store, provider, 3)
	ctx := context.Background()

	seedThread(t, m, "t1", 3)

	if err := s.Summarize(ctx, "u1", "t1"); err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.callCount())
	}

	count, err := store.LiveThreadMessageCount(ctx, "t1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("all messages should be behind the watermark, %d still live", count)
	}

	sums, err := store.RecentBufferSummaries(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("summary load failed: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(sums))
	}
	if sums[0].MessageCount != 3 {
		t.Fatalf("summary should cover 3 messages, covers %d", sums[0].MessageCount)
	}
}

func TestSummarizeBelowThresholdIsNoop(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	provider := &fakeProvider{reply: "unused"}
	s := NewSummarizer(store, provider, 3)
	ctx := context.Background()

	seedThread(t, m, "t1", 2)

	if err := s.Summarize(ctx, "u1", "t1"); err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatal("below-threshold summarize must not call the provider")
	}
}

func TestSummarizeStaleTriggerIsNoop(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	provider := &fakeProvider{reply: "summary"}
	s := NewSummarizer(store, provider, 3)
	ctx := context.Background()

	seedThread(t, m, "t1", 3)

	if err := s.Summarize(ctx, "u1", "t1"); err != nil {
		t.Fatalf("first summarize failed: %v", err)
	}
	// A second trigger for the same snapshot finds nothing live.
	if err := s.Summarize(ctx, "u1", "t1"); err != nil {
		t.Fatalf("stale summarize errored: %v", err)
	}
	if provider.callCount() != 1 {
		t.Fatalf("stale trigger must not re-summarize, got %d calls", provider.callCount())
	}
}

func TestForceSummarizeIgnoresThreshold(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	provider := &fakeProvider{reply: "short thread summary"}
	s := NewSummarizer(store, provider, 100)
	ctx := context.Background()

	seedThread(t, m, "t1", 2)

	if err := s.ForceSummarize(ctx, "u1", "t1"); err != nil {
		t.Fatalf("force summarize failed: %v", err)
	}
	count, _ := store.LiveThreadMessageCount(ctx, "t1")
	if count != 0 {
		t.Fatalf("force summarize should drain the thread, %d still live", count)
	}
}

func TestSummarizeProviderFailureLeavesMessagesLive(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	provider := &fakeProvider{err: errors.New("provider down")}
	s := NewSummarizer(store, provider, 3)
	ctx := context.Background()

	seedThread(t, m, "t1", 3)

	if err := s.Summarize(ctx, "u1", "t1"); err == nil {
		t.Fatal("expected provider error to propagate")
	}
	count, _ := store.LiveThreadMessageCount(ctx, "t1")
	if count != 3 {
		t.Fatalf("failed run must not move the watermark, %d live", count)
	}
}

func TestSummarizeEmptyTextErrors(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	provider := &fakeProvider{reply: "   "}
	s := NewSummarizer(store, provider, 3)

	seedThread(t, m, "t1", 3)

	if err := s.Summarize(context.Background(), "u1", "t1"); err == nil {
		t.Fatal("blank summary text must be rejected")
	}
}

func TestSweepReschedulesOverfullThreads(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	provider := &fakeProvider{reply: "caught up"}
	s := NewSummarizer(store, provider, 3)
	sw := NewSweeper(store, s, 3)
	ctx := context.Background()

	// A thread that crossed the threshold with no trigger landing.
	seedThread(t, m, "t1", 4)

	sw.Sweep()

	// Schedule is fire-and-forget, so poll for the result.
	deadline := time.Now().Add(5 * time.Second)
	for {
		count, err := store.LiveThreadMessageCount(ctx, "t1")
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweep target never got summarized, %d live", count)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTranscriptRendersOldestFirst(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	ctx := context.Background()

	if _, err := m.AddMessage(ctx, "u1", "t1", "user", "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddMessage(ctx, "u1", "t1", "assistant", "second"); err != nil {
		t.Fatal(err)
	}

	live, err := store.LiveThreadMessages(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	got := Transcript(live)
	want := "[user]: first\n\n[assistant]: second\n\n"
	if got != want {
		t.Fatalf("transcript mismatch:\n got %q\nwant %q", got, want)
	}
}
