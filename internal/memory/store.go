// Package memory implements the conversation persistence pipeline: the
// deduplicating message store, background buffer summarization, and the
// static/dynamic context assembly fed to every coaching turn.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/fridaysatfour/wingman/internal/config"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/logging"
)

// Scheduler receives summarization requests when a thread's buffer
// fills. Production wiring uses *Summarizer; tests substitute recorders.
type Scheduler interface {
	Schedule(userID, threadID string)
}

// MessageStore is the single entry point for conversation persistence.
// Messages are append-only; exact re-sends inside the dedup window are
// silently absorbed.
type MessageStore struct {
	store       *db.Store
	bufferSize  int
	dedupWindow time.Duration
	scheduler   Scheduler
}

// NewMessageStore creates a message store over the shared database.
func NewMessageStore(store *db.Store, cfg config.MemoryConfig) *MessageStore {
	return &MessageStore{
		store:       store,
		bufferSize:  cfg.BufferSize,
		dedupWindow: cfg.DedupWindow(),
	}
}

// SetScheduler wires the summarization trigger. Without one, buffer
// crossings are ignored (summarization is best-effort by design).
func (m *MessageStore) SetScheduler(s Scheduler) {
	m.scheduler = s
}

// ValidRole reports whether role is one of the fixed message roles.
func ValidRole(role string) bool {
	switch role {
	case "user", "assistant", "system":
		return true
	}
	return false
}

// FormatContent renders the canonical "{role}: {content}" form used as
// the dedup hash input.
func FormatContent(role, content string) string {
	return role + ": " + content
}

// ContentHash computes the deterministic dedup hash for one message.
func ContentHash(userID, threadID, formatted string) string {
	sum := sha256.Sum256([]byte(userID + "|" + threadID + "|" + formatted))
	return hex.EncodeToString(sum[:])
}

// AddMessage appends one turn to the user's conversation log. It
// returns (false, nil) when the message was a duplicate inside the
// dedup window - skipping a duplicate is success, not an error.
//
// This is the one operation in the pipeline allowed to fail loudly:
// losing a message is a correctness issue, so append errors propagate.
// Everything around the append (profile auto-creation, the buffer
// check) is best-effort.
func (m *MessageStore) AddMessage(ctx context.Context, userID, threadID, role, content string) (bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return false, fmt.Errorf("message content is empty")
	}
	if !ValidRole(role) {
		return false, fmt.Errorf("invalid message role %q", role)
	}
	if userID == "" || threadID == "" {
		return false, fmt.Errorf("user id and thread id are required")
	}

	// Messages reference user_profiles; create a placeholder row so the
	// foreign key always holds. Failures here must not block the turn.
	if err := m.store.EnsureUserProfile(ctx, userID); err != nil {
		logging.Warnf("[memory] failed to ensure profile for %s: %v", userID, err)
	}

	formatted := FormatContent(role, content)
	hash := ContentHash(userID, threadID, formatted)

	since := time.Now().Add(-m.dedupWindow)
	recent, err := m.store.RecentThreadMessages(ctx, threadID, since)
	if err != nil {
		// Dedup degrades to a plain append when the lookup fails; an
		// occasional double-store is preferable to dropping the turn.
		logging.Warnf("[memory] dedup lookup failed for thread %s: %v", threadID, err)
		recent = nil
	}
	for _, prev := range recent {
		if prev.ContentHash == hash || FormatContent(prev.Role, prev.Content) == formatted {
			logging.Debugf("[memory] duplicate message skipped for thread %s", threadID)
			return false, nil
		}
	}

	if _, err := m.store.CreateMessage(ctx, db.CreateMessageParams{
		UserID:      userID,
		ThreadID:    threadID,
		Role:        role,
		Content:     content,
		ContentHash: hash,
	}); err != nil {
		return false, fmt.Errorf("failed to store message: %w", err)
	}

	m.checkBuffer(ctx, userID, threadID)
	return true, nil
}

// checkBuffer schedules background summarization when the thread's live
// count reaches the buffer size. Triggering exactly at the crossing
// (not at every count past it) keeps the schedule to once per crossing;
// the summarizer's in-flight marker guards the remaining races. Missed
// triggers are picked up by the catch-up sweep.
func (m *MessageStore) checkBuffer(ctx context.Context, userID, threadID string) {
	if m.scheduler == nil {
		return
	}
	count, err := m.store.LiveThreadMessageCount(ctx, threadID)
	if err != nil {
		logging.Warnf("[memory] buffer check failed for thread %s: %v", threadID, err)
		return
	}
	if count == m.bufferSize {
		logging.Infof("[memory] thread %s reached buffer size %d, scheduling summarization", threadID, m.bufferSize)
		m.scheduler.Schedule(userID, threadID)
	}
}
