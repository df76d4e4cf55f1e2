package flow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fridaysatfour/wingman/internal/ai"
	"github.com/fridaysatfour/wingman/internal/config"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/db/migrations"
	"github.com/fridaysatfour/wingman/internal/logging"
	"github.com/fridaysatfour/wingman/internal/memory"
)

func init() {
	logging.Disable()
	migrations.QuietMode = true
}

// scriptedProvider answers each completion with the scripted function.
type scriptedProvider struct {
	complete func(req *ai.Request) (string, error)
	requests []*ai.Request
}

func (s *scriptedProvider) ID() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, req *ai.Request) (string, error) {
	s.requests = append(s.requests, req)
	if s.complete != nil {
		return s.complete(req)
	}
	return "coach reply", nil
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(t *testing.T, provider ai.Provider) (*Engine, *db.Store) {
	t.Helper()
	store := newTestStore(t)
	mcfg := config.MemoryConfig{
		BufferSize:         100,
		DedupWindowMinutes: 10,
		RecentSummaries:    3,
		LongTermSummaries:  10,
	}
	messages := memory.NewMessageStore(store, mcfg)
	assembler := memory.NewAssembler(store, mcfg)
	e := NewEngine(store, messages, assembler, provider, config.FlowConfig{SkipWindowHours: 24}, 256)
	return e, store
}

func completeIntro(t *testing.T, store *db.Store, userID string) {
	t.Helper()
	if err := store.EnsureUserProfile(context.Background(), userID); err != nil {
		t.Fatalf("failed to ensure profile: %v", err)
	}
	err := store.UpsertStageProgress(context.Background(), db.StageProgress{
		UserID: userID, Stage: string(StageIntro), Step: 4, Completion: 100, IsComplete: true,
	})
	if err != nil {
		t.Fatalf("failed to complete intro: %v", err)
	}
}

func TestFirstTurnEverOpensWithWelcome(t *testing.T) {
	e, store := newTestEngine(t, &scriptedProvider{})
	ctx := context.Background()

	reply, stage := e.HandleTurn(ctx, "u1", "t1", "hi, I want to finish my album")
	if stage != StageIntro {
		t.Fatalf("first turn should be intro, got %s", stage)
	}
	if reply != introWelcome {
		t.Fatalf("first turn should return the fixed welcome, got %q", reply)
	}

	// Both the user message and the reply are persisted.
	count, err := store.LiveThreadMessageCount(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored messages, got %d", count)
	}
}

func TestTurnFailureReturnsApology(t *testing.T) {
	provider := &scriptedProvider{complete: func(*ai.Request) (string, error) {
		return "", errors.New("provider down")
	}}
	e, _ := newTestEngine(t, provider)
	ctx := context.Background()

	// First turn is fixed text; the second needs the provider and fails.
	e.HandleTurn(ctx, "u1", "t1", "hello")
	reply, _ := e.HandleTurn(ctx, "u1", "t1", "tell me more")
	if reply != apologyText {
		t.Fatalf("provider failure must degrade to the apology, got %q", reply)
	}
}

func TestIntroCoversConceptsThenWaitsForReady(t *testing.T) {
	e, store := newTestEngine(t, &scriptedProvider{})
	ctx := context.Background()

	e.HandleTurn(ctx, "u1", "t1", "hello")          // welcome, covers memory
	e.HandleTurn(ctx, "u1", "t1", "nice to meet you") // adaptivity
	e.HandleTurn(ctx, "u1", "t1", "that makes sense") // support
	e.HandleTurn(ctx, "u1", "t1", "ok, what else")    // journey

	p, err := store.GetStageProgress(ctx, "u1", string(StageIntro))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range introConcepts {
		if p.Answers["concept:"+c] != "covered" {
			t.Fatalf("concept %s not covered: %v", c, p.Answers)
		}
	}
	if p.IsComplete {
		t.Fatal("intro must not complete without a ready signal")
	}

	// Non-ready chatter keeps it open.
	e.HandleTurn(ctx, "u1", "t1", "hmm, let me think about it")
	p, _ = store.GetStageProgress(ctx, "u1", string(StageIntro))
	if p.IsComplete {
		t.Fatal("hesitation should not complete the intro")
	}

	reply, stage := e.HandleTurn(ctx, "u1", "t1", "yes, let's go")
	if stage != StageIntro {
		t.Fatalf("completing turn still belongs to intro, got %s", stage)
	}
	if reply != introCompleteText {
		t.Fatalf("expected intro completion text, got %q", reply)
	}
	p, _ = store.GetStageProgress(ctx, "u1", string(StageIntro))
	if !p.IsComplete {
		t.Fatal("ready signal after full coverage must complete the intro")
	}
}

func TestAssessmentRunsStartToFinish(t *testing.T) {
	e, store := newTestEngine(t, &scriptedProvider{})
	ctx := context.Background()
	completeIntro(t, store, "u1")

	reply, stage := e.HandleTurn(ctx, "u1", "t1", "ok")
	if stage != StageAssessment {
		t.Fatalf("post-intro turn should route to assessment, got %s", stage)
	}
	if !strings.Contains(reply, "Question 1 of 12") {
		t.Fatalf("expected the first question, got %q", reply)
	}

	// Garbage answer re-prompts without advancing.
	reply, _ = e.HandleTurn(ctx, "u1", "t1", "I really could not say")
	if !strings.Contains(reply, "Question 1 of 12") {
		t.Fatalf("re-prompt should repeat question 1, got %q", reply)
	}

	answers := []string{"A", "a", "I choose option A", "A.", "(a)", "definitely A",
		"b", "B", "b)", "B please", "going with b", "a"}
	var last string
	for _, ans := range answers {
		last, _ = e.HandleTurn(ctx, "u1", "t1", ans)
	}

	// 7 As vs 5 Bs.
	if !strings.Contains(last, "The Visionary") {
		t.Fatalf("expected The Visionary as primary, got %q", last)
	}
	if !strings.Contains(last, "The Craftsperson") {
		t.Fatalf("expected The Craftsperson as secondary, got %q", last)
	}

	has, err := store.HasFinalResult(ctx, "u1", string(StageAssessment))
	if err != nil || !has {
		t.Fatalf("assessment result missing: has=%v err=%v", has, err)
	}
	p, _ := store.GetStageProgress(ctx, "u1", string(StageAssessment))
	if !p.IsComplete || p.Completion != 100 {
		t.Fatalf("assessment progress not finalized: %+v", p)
	}

	// Next turn moves on to project setup.
	_, stage = e.HandleTurn(ctx, "u1", "t1", "I'm writing a book")
	if stage != StageProject {
		t.Fatalf("expected project stage after assessment, got %s", stage)
	}
}

func TestSkipDuringAssessmentFallsThroughToProject(t *testing.T) {
	e, store := newTestEngine(t, &scriptedProvider{})
	ctx := context.Background()
	completeIntro(t, store, "u1")

	_, stage := e.HandleTurn(ctx, "u1", "t1", "no thanks, maybe later")
	if stage != StageProject {
		t.Fatalf("skip should fall through to project, got %s", stage)
	}

	p, err := store.GetStageProgress(ctx, "u1", string(StageAssessment))
	if err != nil {
		t.Fatal(err)
	}
	if p.SkipUntil == nil {
		t.Fatal("skip window not recorded")
	}
	if p.IsComplete {
		t.Fatal("skipping must not complete the stage")
	}
}

func TestAssistantReplyStoreFailureDoesNotLoseTurn(t *testing.T) {
	e, store := newTestEngine(t, &scriptedProvider{})
	ctx := context.Background()

	// Returns fixed welcome text; then break the database so the
	// assistant-side append fails.
	reply, _ := e.HandleTurn(ctx, "u1", "t1", "hello")
	if reply != introWelcome {
		t.Fatalf("unexpected reply: %q", reply)
	}

	store.Close()
	reply, _ = e.HandleTurn(ctx, "u1", "t1", "are you there")
	if reply != apologyText {
		t.Fatalf("user append failure must yield the apology, got %q", reply)
	}
}
