package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fridaysatfour/wingman/internal/db"
)

// Archetype is one creativity archetype, keyed by its answer letter.
type Archetype struct {
	Letter string
	Name   string
}

// archetypes is the fixed category order. Scoring ties resolve to the
// archetype appearing earliest in this list.
var archetypes = []Archetype{
	{"A", "The Visionary"},
	{"B", "The Craftsperson"},
	{"C", "The Storyteller"},
	{"D", "The Explorer"},
	{"E", "The Connector"},
	{"F", "The Alchemist"},
}

// assessmentQuestion is one forced-choice question. Options are keyed
// A-F in archetype order.
type assessmentQuestion struct {
	Prompt  string
	Options [6]string
}

var assessmentQuestions = []assessmentQuestion{
	{"When a new project idea hits you, what happens first?", [6]string{
		"I see the finished thing, vivid and whole",
		"I start sketching how I'd actually build it",
		"I imagine telling someone about it",
		"I want to try three versions at once",
		"I think about who I'd want to make it with",
		"I connect it to something else I've been chewing on",
	}},
	{"Your best work happens when...", [6]string{
		"I'm chasing a big what-if",
		"I'm refining until it's exactly right",
		"I'm shaping something people will feel",
		"I'm in unfamiliar territory",
		"I'm bouncing ideas off someone",
		"I'm combining things that don't obviously fit",
	}},
	{"A blank page feels like...", [6]string{
		"an invitation to dream big",
		"raw material waiting for craft",
		"the start of a story",
		"a door to somewhere new",
		"a conversation waiting to happen",
		"a lab bench",
	}},
	{"When you get stuck, you usually...", [6]string{
		"zoom out and revisit the vision",
		"break the problem into smaller pieces",
		"explain it out loud until it makes sense",
		"abandon the route and try another",
		"call someone",
		"borrow a trick from a different discipline",
	}},
	{"The part of a project you'd happily do all day:", [6]string{
		"imagining where it could go",
		"polishing the details",
		"finding the words for it",
		"experimenting with approaches",
		"workshopping it with others",
		"remixing ideas into something new",
	}},
	{"People come to you when they need...", [6]string{
		"someone to see the bigger picture",
		"someone who'll get it done properly",
		"someone to make it land emotionally",
		"someone unafraid to try the weird option",
		"someone to rally the group",
		"someone to find the unexpected angle",
	}},
	{"Your workspace tends to be...", [6]string{
		"covered in plans for things that don't exist yet",
		"organized around the tools you trust",
		"full of notebooks and half-written lines",
		"different every month",
		"wherever the people are",
		"a collision of unrelated materials",
	}},
	{"Finishing a project feels best when...", [6]string{
		"it matches what I first imagined",
		"every piece is exactly as it should be",
		"someone tells me it moved them",
		"I learned something I didn't expect",
		"we made it together",
		"it became something none of the parts were",
	}},
	{"The feedback that helps you most:", [6]string{
		"does this vision hold up?",
		"where is the execution weak?",
		"where did you lose me?",
		"what haven't you tried?",
		"who else should see this?",
		"what would happen if you crossed it with...?",
	}},
	{"Deadlines make you...", [6]string{
		"prioritize the parts that carry the vision",
		"work the checklist",
		"find the through-line fast",
		"improvise",
		"call in help",
		"simplify by merging steps",
	}},
	{"You lose track of time when...", [6]string{
		"mapping what the future could look like",
		"perfecting a single detail",
		"shaping a narrative",
		"wandering without a plan",
		"deep in a good collaboration",
		"chasing a strange connection between ideas",
	}},
	{"Which compliment lands hardest?", [6]string{
		"you think so far ahead",
		"your work is impeccable",
		"you made me feel something",
		"I'd never have tried that",
		"you bring people together",
		"I'd never have put those together",
	}},
}

// Answer is a recognized single-letter assessment answer.
type Answer struct {
	Letter string // "A".."F"
}

// ExtractAnswer pulls a single-letter choice out of free-form text. It
// tolerates "I choose option A", "A.", "a)", "(b)", and letters
// embedded mid-sentence, case-insensitively. The second return is
// false when no usable letter is present - that is a normal re-prompt
// branch, not an error.
func ExtractAnswer(text string) (Answer, bool) {
	normalized := strings.ToLower(text)
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '.', ',', ')', '(', ':', ';', '!', '?', '"', '\'':
			return true
		}
		return false
	})
	for _, f := range fields {
		if len(f) == 1 && f[0] >= 'a' && f[0] <= 'f' {
			return Answer{Letter: strings.ToUpper(f)}, true
		}
	}
	return Answer{}, false
}

// ScoreAssessment tallies per-letter counts and returns the primary and
// secondary archetypes. Ties break toward the archetype earliest in the
// fixed A-F order.
func ScoreAssessment(answers []string) (primary, secondary Archetype, scores map[string]int) {
	scores = make(map[string]int, len(archetypes))
	for _, a := range archetypes {
		scores[a.Letter] = 0
	}
	for _, letter := range answers {
		if _, ok := scores[letter]; ok {
			scores[letter]++
		}
	}

	best, second := -1, -1
	for i, a := range archetypes {
		count := scores[a.Letter]
		if best == -1 || count > scores[archetypes[best].Letter] {
			second = best
			best = i
		} else if second == -1 || count > scores[archetypes[second].Letter] {
			second = i
		}
	}
	return archetypes[best], archetypes[second], scores
}

// formatQuestion renders question n (1-based) with its lettered options.
func formatQuestion(n int) string {
	q := assessmentQuestions[n-1]
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question %d of %d: %s\n\n", n, len(assessmentQuestions), q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&sb, "%s) %s\n", archetypes[i].Letter, opt)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// handleAssessment advances the creativity test by one turn. The test
// itself is fully deterministic - no LLM call is needed to present
// questions, validate answers, or score the result.
func (e *Engine) handleAssessment(ctx context.Context, userID, message string) (string, error) {
	p, exists, err := e.loadProgress(ctx, userID, StageAssessment)
	if err != nil {
		return "", err
	}
	if !exists {
		p = db.StageProgress{
			UserID:  userID,
			Stage:   string(StageAssessment),
			Step:    1,
			Answers: map[string]string{},
		}
		if err := e.store.UpsertStageProgress(ctx, p); err != nil {
			return "", err
		}
		return formatQuestion(1), nil
	}

	answer, ok := ExtractAnswer(message)
	if !ok {
		return assessmentRepromptText + "\n\n" + formatQuestion(p.Step), nil
	}

	p.Answers[fmt.Sprintf("q%d", p.Step)] = answer.Letter

	total := len(assessmentQuestions)
	if p.Step < total {
		p.Step++
		p.Completion = float64(p.Step-1) / float64(total) * 100
		if err := e.store.UpsertStageProgress(ctx, p); err != nil {
			return "", err
		}
		return formatQuestion(p.Step), nil
	}

	// Last answer recorded: compute the archetype, persist the result,
	// then mark the stage complete. The result write comes first so a
	// crash between the two leaves routing correct (final results are
	// the authoritative signal).
	ordered := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		ordered = append(ordered, p.Answers[fmt.Sprintf("q%d", i)])
	}
	primary, secondary, scores := ScoreAssessment(ordered)

	fields, err := json.Marshal(map[string]any{
		"archetype":           primary.Name,
		"archetype_letter":    primary.Letter,
		"secondary_archetype": secondary.Name,
		"secondary_letter":    secondary.Letter,
		"scores":              scores,
	})
	if err != nil {
		return "", err
	}
	rawInputs, err := json.Marshal(p.Answers)
	if err != nil {
		return "", err
	}
	if err := e.store.CreateFinalResult(ctx, db.FinalResult{
		UserID:    userID,
		Stage:     string(StageAssessment),
		Fields:    fields,
		RawInputs: rawInputs,
	}); err != nil {
		return "", err
	}

	p.Completion = 100
	p.IsComplete = true
	if err := e.store.UpsertStageProgress(ctx, p); err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"That's the last one - you're %s, with a strong streak of %s. I'll keep that in mind in how we work together.\n\nNext up: let's get your project down on paper. What are you making?",
		primary.Name, secondary.Name,
	), nil
}
