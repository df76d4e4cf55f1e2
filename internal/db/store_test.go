package db_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/db/migrations"
	"github.com/fridaysatfour/wingman/internal/logging"
)

func init() {
	logging.Disable()
	migrations.QuietMode = true
}

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addMessage(t *testing.T, store *db.Store, userID, threadID, role, content string) db.Message {
	t.Helper()
	require.NoError(t, store.EnsureUserProfile(context.Background(), userID))
	m, err := store.CreateMessage(context.Background(), db.CreateMessageParams{
		UserID:      userID,
		ThreadID:    threadID,
		Role:        role,
		Content:     content,
		ContentHash: fmt.Sprintf("hash-%s-%s", threadID, content),
	})
	require.NoError(t, err)
	return m
}

func TestLiveMessagesRespectSummaryWatermark(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var msgs []db.Message
	for i := 0; i < 6; i++ {
		msgs = append(msgs, addMessage(t, store, "u1", "t1", "user", fmt.Sprintf("msg %d", i)))
	}

	count, err := store.LiveThreadMessageCount(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 6, count)

	// Summarize the first four; the watermark moves to msgs[3].
	_, err = store.CreateBufferSummary(ctx, db.CreateBufferSummaryParams{
		UserID:         "u1",
		ThreadID:       "t1",
		Summary:        "early conversation",
		MessageCount:   4,
		FirstMessageID: msgs[0].ID,
		LastMessageID:  msgs[3].ID,
	})
	require.NoError(t, err)

	live, err := store.LiveThreadMessages(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.Equal(t, "msg 4", live[0].Content)
	require.Equal(t, "msg 5", live[1].Content)

	count, err = store.LiveThreadMessageCount(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestLiveUserMessagesSpanThreads(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	addMessage(t, store, "u1", "t1", "user", "first thread")
	addMessage(t, store, "u1", "t2", "user", "second thread")
	addMessage(t, store, "u2", "t3", "user", "someone else")

	live, err := store.LiveUserMessages(ctx, "u1", 50)
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.Equal(t, "first thread", live[0].Content)
	require.Equal(t, "second thread", live[1].Content)
}

func TestLiveUserMessagesLimitKeepsNewest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		addMessage(t, store, "u1", "t1", "user", fmt.Sprintf("msg %d", i))
	}

	live, err := store.LiveUserMessages(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, live, 2)
	// Newest two, returned oldest first.
	require.Equal(t, "msg 3", live[0].Content)
	require.Equal(t, "msg 4", live[1].Content)
}

func TestOlderBufferSummaries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureUserProfile(ctx, "u1"))

	for i := 0; i < 5; i++ {
		_, err := store.CreateBufferSummary(ctx, db.CreateBufferSummaryParams{
			UserID:        "u1",
			ThreadID:      "t1",
			Summary:       fmt.Sprintf("summary %d", i),
			MessageCount:  10,
			LastMessageID: int64(i + 1),
		})
		require.NoError(t, err)
	}

	recent, err := store.RecentBufferSummaries(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "summary 4", recent[0].Summary) // newest first

	older, err := store.OlderBufferSummaries(ctx, "u1", 2, 10)
	require.NoError(t, err)
	require.Len(t, older, 3)
	require.Equal(t, "summary 0", older[0].Summary) // oldest first
	require.Equal(t, "summary 2", older[2].Summary)
}

func TestUpsertStageProgressCompleteIsMonotonic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureUserProfile(ctx, "u1"))

	p := db.StageProgress{
		UserID:     "u1",
		Stage:      "assessment",
		Step:       12,
		Answers:    map[string]string{"q1": "A"},
		Completion: 100,
		IsComplete: true,
	}
	require.NoError(t, store.UpsertStageProgress(ctx, p))

	// A later writer that thinks the stage is incomplete cannot revert it.
	p.IsComplete = false
	p.Completion = 50
	require.NoError(t, store.UpsertStageProgress(ctx, p))

	got, err := store.GetStageProgress(ctx, "u1", "assessment")
	require.NoError(t, err)
	require.True(t, got.IsComplete)
	require.Equal(t, 50.0, got.Completion)
	require.Equal(t, "A", got.Answers["q1"])
}

func TestCreateFinalResultIsCreateOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureUserProfile(ctx, "u1"))

	first := db.FinalResult{
		UserID: "u1",
		Stage:  "assessment",
		Fields: json.RawMessage(`{"archetype":"The Visionary"}`),
	}
	require.NoError(t, store.CreateFinalResult(ctx, first))

	second := first
	second.Fields = json.RawMessage(`{"archetype":"The Alchemist"}`)
	require.NoError(t, store.CreateFinalResult(ctx, second))

	got, err := store.GetFinalResult(ctx, "u1", "assessment")
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(got.Fields, &fields))
	require.Equal(t, "The Visionary", fields["archetype"])

	has, err := store.HasFinalResult(ctx, "u1", "assessment")
	require.NoError(t, err)
	require.True(t, has)
}

func TestSetStageSkipUntilCreatesRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureUserProfile(ctx, "u1"))

	until := time.Now().Add(24 * time.Hour)
	require.NoError(t, store.SetStageSkipUntil(ctx, "u1", "assessment", until))

	got, err := store.GetStageProgress(ctx, "u1", "assessment")
	require.NoError(t, err)
	require.False(t, got.IsComplete)
	require.NotNil(t, got.SkipUntil)
	require.Equal(t, until.Unix(), got.SkipUntil.Unix())
}

func TestThreadsAtThreshold(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		addMessage(t, store, "u1", "busy", "user", fmt.Sprintf("msg %d", i))
	}
	addMessage(t, store, "u2", "quiet", "user", "only one")

	refs, err := store.ThreadsAtThreshold(ctx, 3)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "busy", refs[0].ThreadID)
	require.Equal(t, "u1", refs[0].UserID)
}

func TestStageProgressForUserIsOrdered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureUserProfile(ctx, "u1"))

	for _, stage := range []string{"project", "intro", "assessment"} {
		require.NoError(t, store.UpsertStageProgress(ctx, db.StageProgress{
			UserID: "u1", Stage: stage, Step: 1,
		}))
	}

	progress, err := store.StageProgressForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, progress, 3)
	require.Equal(t, "assessment", progress[0].Stage)
	require.Equal(t, "intro", progress[1].Stage)
	require.Equal(t, "project", progress[2].Stage)
}
