package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/logging"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/session"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

func (s *Server) handleHealth(c echo.Context) error {
	events := "ok"
	if !s.bus.Healthy() {
		events = "disconnected"
	}
	return success(c, http.StatusOK, HealthResponse{Status: "ok", Events: events, Sessions: s.store.Len()})
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	expertise, err := gateway.ParseExpertise(req.ExpertiseLevel)
	if err != nil {
		return badRequest(err.Error())
	}
	mode, err := orchestrator.ParseMode(req.Mode)
	if err != nil {
		return badRequest(err.Error())
	}

	sess, err := s.store.Create(c.Request().Context())
	if err != nil {
		return err
	}
	o := sess.Orchestrator
	o.SetGoal(req.Goal)
	o.SetExpertise(expertise)
	o.SetMode(mode)

	return success(c, http.StatusCreated, sessionResponse(sess))
}

func sessionResponse(sess *session.Session) SessionResponse {
	o := sess.Orchestrator
	return SessionResponse{
		SessionID:      sess.ID,
		Goal:           o.Goal(),
		ExpertiseLevel: o.Expertise(),
		Mode:           o.Mode(),
	}
}

func (s *Server) handleListSessions(c echo.Context) error {
	list := s.store.List()
	return success(c, http.StatusOK, SessionListResponse{Sessions: list, Total: len(list)})
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if err := s.store.Evict(c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Envelope{Status: statusSuccess, Message: "Session deleted"})
}

// exclusive runs fn while holding the session guard. A second mutating
// request during a run or edit fails with session.ErrBusy.
func (s *Server) exclusive(c echo.Context, fn func(ctx context.Context, sess *session.Session) error) error {
	sess, err := s.store.Acquire(c.Param("id"))
	if err != nil {
		return err
	}
	defer sess.Release()

	ctx := logging.WithSessionID(c.Request().Context(), sess.ID)
	return fn(ctx, sess)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	return s.exclusive(c, func(ctx context.Context, sess *session.Session) error {
		if strings.TrimSpace(req.Goal) != "" {
			sess.Orchestrator.SetGoal(req.Goal)
		}
		a, err := sess.Orchestrator.Analyze(ctx)
		if err != nil {
			return err
		}
		if a.Questions == nil {
			a.Questions = []gateway.Question{}
		}
		return success(c, http.StatusOK, a)
	})
}

func (s *Server) handleClarifications(c echo.Context) error {
	var req ClarificationsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if len(req.Answers) == 0 {
		return badRequest("answers are required")
	}
	return s.exclusive(c, func(_ context.Context, sess *session.Session) error {
		n, err := sess.Orchestrator.Answer(req.Answers)
		if err != nil {
			return err
		}
		pending := sess.Orchestrator.PendingQuestions()
		if pending == nil {
			pending = []gateway.Question{}
		}
		return success(c, http.StatusOK, ClarificationsResponse{
			Recorded:       n,
			Pending:        pending,
			Clarifications: sess.Orchestrator.Clarifications(),
		})
	})
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	return s.exclusive(c, func(ctx context.Context, sess *session.Session) error {
		o := sess.Orchestrator
		if strings.TrimSpace(req.Goal) != "" {
			o.SetGoal(req.Goal)
		}
		if req.ResetClarifications {
			o.ResetClarifications()
		}
		if _, err := o.Generate(ctx); err != nil {
			return err
		}
		return success(c, http.StatusOK, tasksResponse(o.Queue(), false))
	})
}

func tasksResponse(q *task.Queue, withSummary bool) TasksResponse {
	grouped := make(map[task.Phase][]task.Task)
	total := 0
	for _, g := range q.ByPhase() {
		grouped[g.Phase] = g.Tasks
		total += len(g.Tasks)
	}
	resp := TasksResponse{Tasks: grouped, Total: total}
	if withSummary {
		sum := q.Summary()
		resp.Summary = &sum
	}
	return resp
}

func (s *Server) handleEdit(c echo.Context) error {
	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if strings.TrimSpace(req.EditRequest) == "" {
		return badRequest("edit_request is required")
	}
	return s.exclusive(c, func(ctx context.Context, sess *session.Session) error {
		current, p, err := sess.Orchestrator.ProposeEdit(ctx, req.TaskID, req.EditRequest)
		if err != nil {
			return err
		}
		changes := p.ChangesMade
		if changes == nil {
			changes = []string{}
		}
		return success(c, http.StatusOK, EditResponse{
			TaskID:         current.ID,
			Interpretation: p.Interpretation,
			ChangesMade:    changes,
			Current:        current,
			Proposed:       p.Apply(current),
		})
	})
}

func (s *Server) handleApplyEdit(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("task_id"))
	if err != nil {
		return badRequest(fmt.Sprintf("task id must be a number, got %q", c.Param("task_id")))
	}
	var req ApplyEditRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	p := gateway.EditProposal{Title: req.Title, Description: req.Description}
	if req.Phase != nil {
		phase, ok := parseKnownPhase(*req.Phase)
		if !ok {
			return badRequest(fmt.Sprintf("unknown phase %q", *req.Phase))
		}
		p.Phase = &phase
	}

	return s.exclusive(c, func(ctx context.Context, sess *session.Session) error {
		t, err := sess.Orchestrator.ApplyEdit(ctx, id, p)
		if err != nil {
			return err
		}
		s.logger.Debug("edit applied", zap.String("session.id", sess.ID), zap.Int("task.id", id))
		return success(c, http.StatusOK, TaskResponse{Task: t})
	})
}

// parseKnownPhase rejects unknown phases instead of defaulting them.
func parseKnownPhase(s string) (task.Phase, bool) {
	p := task.ParsePhase(s)
	return p, string(p) == strings.ToLower(strings.TrimSpace(s))
}

func (s *Server) handleGetTasks(c echo.Context) error {
	sess, err := s.store.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, tasksResponse(sess.Orchestrator.Queue(), true))
}
