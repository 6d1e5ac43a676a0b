package http

import (
	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/session"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Status  string `json:"status"` // success or error
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// HealthResponse is the data of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Events   string `json:"events"`
	Sessions int    `json:"sessions"`
}

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	Goal           string `json:"goal"`
	ExpertiseLevel string `json:"expertise_level"`
	Mode           string `json:"mode"`
}

// SessionResponse describes one session.
type SessionResponse struct {
	SessionID      string            `json:"session_id"`
	Goal           string            `json:"goal"`
	ExpertiseLevel gateway.Expertise `json:"expertise_level"`
	Mode           orchestrator.Mode `json:"mode"`
}

// SessionListResponse is the data of GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []session.Info `json:"sessions"`
	Total    int            `json:"total"`
}

// AnalyzeRequest is the body of POST .../analyze. A non-empty goal
// replaces the session goal first.
type AnalyzeRequest struct {
	Goal string `json:"goal"`
}

// ClarificationsRequest is the body of POST .../clarifications.
type ClarificationsRequest struct {
	Answers []string `json:"answers"`
}

// ClarificationsResponse reports recorded answers and what is still open.
type ClarificationsResponse struct {
	Recorded       int                     `json:"recorded"`
	Pending        []gateway.Question      `json:"pending"`
	Clarifications []gateway.Clarification `json:"clarifications"`
}

// GenerateRequest is the body of POST .../generate.
type GenerateRequest struct {
	Goal                string `json:"goal"`
	ResetClarifications bool   `json:"reset_clarifications"`
}

// TasksResponse lists a session's tasks grouped by phase.
type TasksResponse struct {
	Tasks   map[task.Phase][]task.Task `json:"tasks"`
	Total   int                        `json:"total"`
	Summary *task.Summary              `json:"summary,omitempty"`
}

// EditRequest is the body of POST .../edit.
type EditRequest struct {
	TaskID      int    `json:"task_id"`
	EditRequest string `json:"edit_request"`
}

// EditResponse previews an interpreted edit. Nothing is applied.
type EditResponse struct {
	TaskID         int       `json:"task_id"`
	Interpretation string    `json:"interpretation"`
	ChangesMade    []string  `json:"changes_made"`
	Current        task.Task `json:"current"`
	Proposed       task.Task `json:"proposed"`
}

// ApplyEditRequest is the body of POST .../tasks/:task_id/apply. Omitted
// fields keep their current value.
type ApplyEditRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Phase       *string `json:"phase"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task task.Task `json:"task"`
}
