package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fridaysatfour/wingman/internal/config"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/logging"
)

// liveMessageLimit bounds the dynamic context; older turns are expected
// to live in buffer summaries.
const liveMessageLimit = 50

// StaticContext is the slow-moving half of a turn's context. For
// identical underlying rows, FormatStaticContext must render it to
// byte-identical output so the provider-side prompt cache stays warm.
type StaticContext struct {
	HasProfile bool
	Profile    db.UserProfile

	// Assessment and Project are the decoded FinalResult fields for the
	// respective stages; nil when the stage has not completed.
	Assessment map[string]any
	Project    map[string]any

	// StageUpdates has one line per touched stage, in stage name order.
	StageUpdates []string

	// LongTerm holds buffer summaries old enough to have aged out of
	// the dynamic context, oldest first.
	LongTerm []db.BufferSummary
}

// DynamicContext is the fast-moving half: the live conversation.
type DynamicContext struct {
	ThreadID        string
	Messages        []db.Message       // live, oldest first, user-scoped
	RecentSummaries []db.BufferSummary // newest first
}

// Context pairs the two halves for one turn.
type Context struct {
	Static  StaticContext
	Dynamic DynamicContext
}

// Assembler builds per-turn context from the database.
type Assembler struct {
	store             *db.Store
	recentSummaries   int
	longTermSummaries int
}

// NewAssembler creates a context assembler.
func NewAssembler(store *db.Store, cfg config.MemoryConfig) *Assembler {
	return &Assembler{
		store:             store,
		recentSummaries:   cfg.RecentSummaries,
		longTermSummaries: cfg.LongTermSummaries,
	}
}

// GetContext returns the live dynamic context. Messages are scoped to
// the user, not the thread: memory must survive a client starting a new
// thread id, so the thread id only matters for write-path dedup.
func (a *Assembler) GetContext(ctx context.Context, userID, threadID string) (DynamicContext, error) {
	messages, err := a.store.LiveUserMessages(ctx, userID, liveMessageLimit)
	if err != nil {
		return DynamicContext{ThreadID: threadID}, fmt.Errorf("failed to load live messages: %w", err)
	}
	summaries, err := a.store.RecentBufferSummaries(ctx, userID, a.recentSummaries)
	if err != nil {
		return DynamicContext{ThreadID: threadID}, fmt.Errorf("failed to load recent summaries: %w", err)
	}
	return DynamicContext{
		ThreadID:        threadID,
		Messages:        messages,
		RecentSummaries: summaries,
	}, nil
}

// GetCachingOptimizedContext returns the full static/dynamic pair. It
// never fails: on any database error the affected section degrades to
// its empty default, because context assembly must not abort a turn.
func (a *Assembler) GetCachingOptimizedContext(ctx context.Context, userID, threadID string) Context {
	var out Context
	out.Dynamic.ThreadID = threadID

	dynamic, err := a.GetContext(ctx, userID, threadID)
	if err != nil {
		logging.Warnf("[context] dynamic context degraded for %s: %v", userID, err)
	} else {
		out.Dynamic = dynamic
	}

	profile, err := a.store.GetUserProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Warnf("[context] profile load failed for %s: %v", userID, err)
		}
	} else {
		out.Static.HasProfile = true
		out.Static.Profile = profile
	}

	out.Static.Assessment = a.loadResultFields(ctx, userID, "assessment")
	out.Static.Project = a.loadResultFields(ctx, userID, "project")

	progress, err := a.store.StageProgressForUser(ctx, userID)
	if err != nil {
		logging.Warnf("[context] stage progress load failed for %s: %v", userID, err)
	}
	for _, p := range progress {
		out.Static.StageUpdates = append(out.Static.StageUpdates, stageUpdateLine(p))
	}

	longTerm, err := a.store.OlderBufferSummaries(ctx, userID, a.recentSummaries, a.longTermSummaries)
	if err != nil {
		logging.Warnf("[context] long-term summary load failed for %s: %v", userID, err)
	} else {
		out.Static.LongTerm = longTerm
	}

	return out
}

func (a *Assembler) loadResultFields(ctx context.Context, userID, stage string) map[string]any {
	result, err := a.store.GetFinalResult(ctx, userID, stage)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Warnf("[context] %s result load failed for %s: %v", stage, userID, err)
		}
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(result.Fields, &fields); err != nil {
		logging.Warnf("[context] %s result fields unparseable for %s: %v", stage, userID, err)
		return nil
	}
	return fields
}

func stageUpdateLine(p db.StageProgress) string {
	if p.IsComplete {
		return fmt.Sprintf("%s: complete", p.Stage)
	}
	return fmt.Sprintf("%s: step %d, %d%% complete", p.Stage, p.Step, int(p.Completion))
}

const notSetPlaceholder = "Not set yet."

// FormatStaticContext renders the static context as the cacheable
// leading prompt block. It is a pure function of its input: identical
// snapshots produce byte-identical output regardless of call order,
// wall-clock time, or map iteration order. Every section always
// appears - missing data renders the placeholder rather than dropping
// the section, which would change the cache key's structure.
func FormatStaticContext(sc StaticContext) string {
	var parts []string

	var profile string
	if sc.HasProfile {
		var lines []string
		name := strings.TrimSpace(sc.Profile.FirstName + " " + sc.Profile.LastName)
		if name != "" {
			lines = append(lines, "Name: "+name)
		}
		if sc.Profile.Email != "" {
			lines = append(lines, "Email: "+sc.Profile.Email)
		}
		profile = strings.Join(lines, "\n")
	}
	if profile == "" {
		profile = notSetPlaceholder
	}
	parts = append(parts, "# Member Profile\n\n"+profile)

	parts = append(parts, "# Creativity Archetype\n\n"+formatFields(sc.Assessment))
	parts = append(parts, "# Project Overview\n\n"+formatFields(sc.Project))

	updates := notSetPlaceholder
	if len(sc.StageUpdates) > 0 {
		var lines []string
		for _, u := range sc.StageUpdates {
			lines = append(lines, "- "+u)
		}
		updates = strings.Join(lines, "\n")
	}
	parts = append(parts, "# Stage Progress\n\n"+updates)

	longTerm := notSetPlaceholder
	if len(sc.LongTerm) > 0 {
		var lines []string
		for _, s := range sc.LongTerm {
			lines = append(lines, "- "+s.Summary)
		}
		longTerm = strings.Join(lines, "\n")
	}
	parts = append(parts, "# Long-term Memory\n\n"+longTerm)

	return strings.Join(parts, "\n\n---\n\n")
}

// formatFields renders a decoded JSON object with sorted keys and
// deterministic value rendering.
func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return notSetPlaceholder
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, formatValue(fields[k])))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			items = append(items, formatValue(item))
		}
		return strings.Join(items, ", ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, 0, len(keys))
		for _, k := range keys {
			items = append(items, k+"="+formatValue(val[k]))
		}
		return strings.Join(items, ", ")
	default:
		return fmt.Sprintf("%v", val)
	}
}
