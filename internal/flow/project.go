package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fridaysatfour/wingman/internal/ai"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/logging"
	"github.com/fridaysatfour/wingman/internal/memory"
)

// minTopicChars is the loose fallback for topic coverage: even when
// insight extraction comes up short, this much conversation about a
// topic counts as covered.
const minTopicChars = 200

// projectTopic is one of the ordered project-setup topics. A topic is
// covered once at least two of its three expected insight keys are
// populated, or the accumulated text crosses minTopicChars.
type projectTopic struct {
	Key      string
	Label    string
	Guidance string
	Keys     [3]string
}

var projectTopics = []projectTopic{
	{"vision", "Project vision",
		"Find out what they are making, the core idea behind it, and who it is for.",
		[3]string{"project_type", "core_idea", "audience"}},
	{"motivation", "Motivation",
		"Find out why this project and why now, what it means to them personally, and the impact they want it to have.",
		[3]string{"why_now", "personal_meaning", "desired_impact"}},
	{"experience", "Experience",
		"Learn their background, past projects they have attempted or finished, and the skills they bring.",
		[3]string{"background", "past_projects", "skills"}},
	{"goals", "Goals",
		"Pin down their six-month goal, what success looks like, and the first milestone.",
		[3]string{"six_month_goal", "success_definition", "first_milestone"}},
	{"challenges", "Challenges",
		"Surface the main obstacle, their time constraints, and what support they need.",
		[3]string{"main_obstacle", "time_constraints", "support_needs"}},
	{"resources", "Resources",
		"Learn how many hours a week they have, the tools they work with, and any budget.",
		[3]string{"weekly_hours", "tools", "budget"}},
	{"accountability", "Accountability",
		"Find out how they want check-ins, how they like feedback, and what keeps them motivated.",
		[3]string{"check_in_style", "feedback_preference", "motivation_style"}},
	{"next_steps", "Next steps",
		"Agree the immediate next action, a weekly commitment, and a target date.",
		[3]string{"immediate_action", "weekly_commitment", "target_date"}},
}

// TopicInsights holds every insight key the project setup can extract.
// Typed fields rather than an open map so writer and reader cannot
// drift on key names; all fields are optional.
type TopicInsights struct {
	ProjectType string `json:"project_type,omitempty"`
	CoreIdea    string `json:"core_idea,omitempty"`
	Audience    string `json:"audience,omitempty"`

	WhyNow          string `json:"why_now,omitempty"`
	PersonalMeaning string `json:"personal_meaning,omitempty"`
	DesiredImpact   string `json:"desired_impact,omitempty"`

	Background   string `json:"background,omitempty"`
	PastProjects string `json:"past_projects,omitempty"`
	Skills       string `json:"skills,omitempty"`

	SixMonthGoal      string `json:"six_month_goal,omitempty"`
	SuccessDefinition string `json:"success_definition,omitempty"`
	FirstMilestone    string `json:"first_milestone,omitempty"`

	MainObstacle    string `json:"main_obstacle,omitempty"`
	TimeConstraints string `json:"time_constraints,omitempty"`
	SupportNeeds    string `json:"support_needs,omitempty"`

	WeeklyHours string `json:"weekly_hours,omitempty"`
	Tools       string `json:"tools,omitempty"`
	Budget      string `json:"budget,omitempty"`

	CheckInStyle       string `json:"check_in_style,omitempty"`
	FeedbackPreference string `json:"feedback_preference,omitempty"`
	MotivationStyle    string `json:"motivation_style,omitempty"`

	ImmediateAction  string `json:"immediate_action,omitempty"`
	WeeklyCommitment string `json:"weekly_commitment,omitempty"`
	TargetDate       string `json:"target_date,omitempty"`
}

// Value returns the insight for a known key, or "" for anything else.
func (ti *TopicInsights) Value(key string) string {
	switch key {
	case "project_type":
		return ti.ProjectType
	case "core_idea":
		return ti.CoreIdea
	case "audience":
		return ti.Audience
	case "why_now":
		return ti.WhyNow
	case "personal_meaning":
		return ti.PersonalMeaning
	case "desired_impact":
		return ti.DesiredImpact
	case "background":
		return ti.Background
	case "past_projects":
		return ti.PastProjects
	case "skills":
		return ti.Skills
	case "six_month_goal":
		return ti.SixMonthGoal
	case "success_definition":
		return ti.SuccessDefinition
	case "first_milestone":
		return ti.FirstMilestone
	case "main_obstacle":
		return ti.MainObstacle
	case "time_constraints":
		return ti.TimeConstraints
	case "support_needs":
		return ti.SupportNeeds
	case "weekly_hours":
		return ti.WeeklyHours
	case "tools":
		return ti.Tools
	case "budget":
		return ti.Budget
	case "check_in_style":
		return ti.CheckInStyle
	case "feedback_preference":
		return ti.FeedbackPreference
	case "motivation_style":
		return ti.MotivationStyle
	case "immediate_action":
		return ti.ImmediateAction
	case "weekly_commitment":
		return ti.WeeklyCommitment
	case "target_date":
		return ti.TargetDate
	}
	return ""
}

const extractInsightsPrompt = `Extract structured insights from the member's message below. You are listening for these specific fields:

%s

Respond ONLY with a JSON object. Include a field only when the message actually answers it; leave everything else out. Values are short plain-text strings in the member's own terms.

Member message:
%s`

// extractTopicInsights asks the LLM to pull the topic's expected keys
// out of free text. An unparseable response counts as zero insights,
// not an error - the length heuristic still moves the topic forward.
func (e *Engine) extractTopicInsights(ctx context.Context, topic projectTopic, message string) (TopicInsights, error) {
	var fieldList strings.Builder
	for _, k := range topic.Keys {
		fmt.Fprintf(&fieldList, "- %s\n", k)
	}
	prompt := fmt.Sprintf(extractInsightsPrompt, strings.TrimRight(fieldList.String(), "\n"), message)

	text, err := e.provider.Complete(ctx, &ai.Request{
		Messages:  []ai.Message{{Role: "user", Content: prompt}},
		MaxTokens: 400,
	})
	if err != nil {
		return TopicInsights{}, fmt.Errorf("insight extraction failed: %w", err)
	}

	var insights TopicInsights
	raw, ok := extractJSONObject(text)
	if !ok {
		logging.Debugf("[project] no JSON object in extraction response")
		return insights, nil
	}
	if err := json.Unmarshal([]byte(raw), &insights); err != nil {
		logging.Warnf("[project] unparseable extraction response: %v", err)
		return TopicInsights{}, nil
	}
	return insights, nil
}

// handleProject advances project setup by one turn.
func (e *Engine) handleProject(ctx context.Context, userID, message string, cctx memory.Context) (string, error) {
	p, exists, err := e.loadProgress(ctx, userID, StageProject)
	if err != nil {
		return "", err
	}
	if !exists {
		p = db.StageProgress{
			UserID:  userID,
			Stage:   string(StageProject),
			Step:    1,
			Answers: map[string]string{},
		}
		if err := e.store.UpsertStageProgress(ctx, p); err != nil {
			return "", err
		}
		return e.projectReply(ctx, message, cctx, projectTopics[0], false)
	}

	topic := projectTopics[p.Step-1]

	textKey := "text:" + topic.Key
	accumulated := strings.TrimSpace(p.Answers[textKey] + "\n" + message)
	p.Answers[textKey] = accumulated

	insights, err := e.extractTopicInsights(ctx, topic, message)
	if err != nil {
		return "", err
	}
	populated := 0
	for _, k := range topic.Keys {
		if v := strings.TrimSpace(insights.Value(k)); v != "" {
			p.Answers["insight:"+k] = v
		}
		if p.Answers["insight:"+k] != "" {
			populated++
		}
	}

	covered := populated >= 2 || len(accumulated) >= minTopicChars
	if !covered {
		if err := e.store.UpsertStageProgress(ctx, p); err != nil {
			return "", err
		}
		return e.projectReply(ctx, message, cctx, topic, true)
	}

	if p.Step < len(projectTopics) {
		p.Step++
		p.Completion = float64(p.Step-1) / float64(len(projectTopics)) * 100
		if err := e.store.UpsertStageProgress(ctx, p); err != nil {
			return "", err
		}
		return e.projectReply(ctx, message, cctx, projectTopics[p.Step-1], false)
	}

	// Last topic covered: assemble the overview, persist the result,
	// then mark complete.
	if err := e.finalizeProject(ctx, userID, p); err != nil {
		return "", err
	}
	return projectCompleteText, nil
}

func (e *Engine) projectReply(ctx context.Context, message string, cctx memory.Context, topic projectTopic, followUp bool) (string, error) {
	mode := "Open this topic with the member."
	if followUp {
		mode = "Stay on this topic; gently draw out what is still missing."
	}
	system := fmt.Sprintf("%s\n\nYou are setting up the member's project overview. Current topic: %s. %s %s",
		personaPrompt, topic.Label, topic.Guidance, mode)
	reply, err := e.provider.Complete(ctx, &ai.Request{
		StaticContext: memory.FormatStaticContext(cctx.Static),
		System:        system,
		Messages:      dynamicMessages(cctx.Dynamic, message),
		MaxTokens:     e.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("project reply failed: %w", err)
	}
	return reply, nil
}

// finalizeProject builds the structured overview from the accumulated
// insights. The goals/challenges/metrics arrays are derived by keyword
// matching on insight key names.
func (e *Engine) finalizeProject(ctx context.Context, userID string, p db.StageProgress) error {
	fields := map[string]any{}
	var goals, challenges, metrics []string

	for _, topic := range projectTopics {
		for _, k := range topic.Keys {
			v := p.Answers["insight:"+k]
			if v == "" {
				continue
			}
			fields[k] = v
			switch {
			case strings.Contains(k, "goal") || strings.Contains(k, "milestone") || strings.Contains(k, "commitment"):
				goals = append(goals, v)
			case strings.Contains(k, "obstacle") || strings.Contains(k, "challenge") || strings.Contains(k, "constraint"):
				challenges = append(challenges, v)
			case strings.Contains(k, "success") || strings.Contains(k, "metric") || strings.Contains(k, "target"):
				metrics = append(metrics, v)
			}
		}
	}
	fields["goals"] = goals
	fields["challenges"] = challenges
	fields["metrics"] = metrics

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	rawInputs, err := json.Marshal(p.Answers)
	if err != nil {
		return err
	}
	if err := e.store.CreateFinalResult(ctx, db.FinalResult{
		UserID:    userID,
		Stage:     string(StageProject),
		Fields:    fieldsJSON,
		RawInputs: rawInputs,
	}); err != nil {
		return err
	}

	p.Completion = 100
	p.IsComplete = true
	return e.store.UpsertStageProgress(ctx, p)
}
