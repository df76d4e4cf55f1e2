package types

// SendTurnRequest is one member message into the conversation.
type SendTurnRequest struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message"`
}

// SendTurnResponse carries the coach's reply plus the stage that
// produced it.
type SendTurnResponse struct {
	ThreadID string `json:"thread_id"`
	Response string `json:"response"`
	Stage    string `json:"stage"`
}

// StageStatus is one row of a member's onboarding progress.
type StageStatus struct {
	Stage      string  `json:"stage"`
	Step       int     `json:"step"`
	Completion float64 `json:"completion"`
	IsComplete bool    `json:"is_complete"`
	HasResult  bool    `json:"has_result"`
	SkipUntil  string  `json:"skip_until,omitempty"`
}

// StatusRequest identifies the member whose progress is being asked for.
type StatusRequest struct {
	UserID string `path:"userId"`
}

// StatusResponse reports the member's current stage and per-stage progress.
type StatusResponse struct {
	UserID       string        `json:"user_id"`
	CurrentStage string        `json:"current_stage"`
	Stages       []StageStatus `json:"stages"`
}

// HealthResponse is the liveness probe payload.
type HealthResponse struct {
	Status string `json:"status"`
}
