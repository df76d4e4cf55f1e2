package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fridaysatfour/wingman/internal/config"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/db/migrations"
	"github.com/fridaysatfour/wingman/internal/logging"
)

func init() {
	logging.Disable()
	migrations.QuietMode = true
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

func testMemoryConfig() config.MemoryConfig {
	return config.MemoryConfig{
		BufferSize:         3,
		DedupWindowMinutes: 10,
		RecentSummaries:    2,
		LongTermSummaries:  5,
	}
}

// recorderScheduler counts Schedule calls without doing any work.
type recorderScheduler struct {
	calls []string
}

func (r *recorderScheduler) Schedule(userID, threadID string) {
	r.calls = append(r.calls, threadID)
}

func TestAddMessageStoresAndReturnsTrue(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	ctx := context.Background()

	stored, err := m.AddMessage(ctx, "u1", "t1", "user", "hello there")
	if err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if !stored {
		t.Fatal("expected message to be stored")
	}

	count, err := store.LiveThreadMessageCount(ctx, "t1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 live message, got %d", count)
	}
}

func TestAddMessageDeduplicatesExactResend(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	ctx := context.Background()

	if _, err := m.AddMessage(ctx, "u1", "t1", "user", "hello there"); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	stored, err := m.AddMessage(ctx, "u1", "t1", "user", "hello there")
	if err != nil {
		t.Fatalf("duplicate add errored, want silent skip: %v", err)
	}
	if stored {
		t.Fatal("duplicate inside the window should not be stored")
	}

	count, _ := store.LiveThreadMessageCount(ctx, "t1")
	if count != 1 {
		t.Fatalf("expected 1 live message after dedup, got %d", count)
	}
}

func TestDedupIsScopedToRoleAndThread(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	ctx := context.Background()

	if _, err := m.AddMessage(ctx, "u1", "t1", "user", "hello there"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// Same words from the assistant are a different message.
	stored, err := m.AddMessage(ctx, "u1", "t1", "assistant", "hello there")
	if err != nil || !stored {
		t.Fatalf("assistant echo should store: stored=%v err=%v", stored, err)
	}

	// Same message in another thread is a different message.
	stored, err = m.AddMessage(ctx, "u1", "t2", "user", "hello there")
	if err != nil || !stored {
		t.Fatalf("other-thread resend should store: stored=%v err=%v", stored, err)
	}
}

func TestDedupWindowExpires(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	ctx := context.Background()

	if _, err := m.AddMessage(ctx, "u1", "t1", "user", "hello there"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// Age the stored message past the window.
	old := time.Now().Add(-11 * time.Minute).Unix()
	if _, err := store.DB().Exec(`UPDATE messages SET created_at = ?`, old); err != nil {
		t.Fatalf("failed to age message: %v", err)
	}

	stored, err := m.AddMessage(ctx, "u1", "t1", "user", "hello there")
	if err != nil {
		t.Fatalf("re-add failed: %v", err)
	}
	if !stored {
		t.Fatal("message outside the dedup window should be stored again")
	}
}

func TestAddMessageValidation(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	ctx := context.Background()

	cases := []struct {
		name                            string
		userID, threadID, role, content string
	}{
		{"empty content", "u1", "t1", "user", "   "},
		{"bad role", "u1", "t1", "robot", "hi"},
		{"missing user", "", "t1", "user", "hi"},
		{"missing thread", "u1", "", "user", "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.AddMessage(ctx, tc.userID, tc.threadID, tc.role, tc.content); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBufferTriggersExactlyAtThreshold(t *testing.T) {
	store := newTestStore(t)
	m := NewMessageStore(store, testMemoryConfig())
	rec := &recorderScheduler{}
	m.SetScheduler(rec)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := m.AddMessage(ctx, "u1", "t1", "user", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}

	// Buffer size is 3: only the third message crosses the threshold.
	if len(rec.calls) != 1 {
		t.Fatalf("expected exactly 1 schedule call, got %d", len(rec.calls))
	}
	if rec.calls[0] != "t1" {
		t.Fatalf("scheduled wrong thread: %s", rec.calls[0])
	}
}

func TestContentHashIsDeterministic(t *testing.T) {
	a := ContentHash("u1", "t1", FormatContent("user", "hello"))
	b := ContentHash("u1", "t1", FormatContent("user", "hello"))
	if a != b {
		t.Fatal("identical inputs must hash identically")
	}
	if a == ContentHash("u1", "t2", FormatContent("user", "hello")) {
		t.Fatal("thread id must participate in the hash")
	}
	if a == ContentHash("u1", "t1", FormatContent("assistant", "hello")) {
		t.Fatal("role must participate in the hash")
	}
}
