package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/events"
	"github.com/fyrsmithlabs/todorun/internal/logging"
)

// handleStream executes the session's plan and streams its events.
//
// SSE event types follow the run: run_start, task_start, task_complete and
// finally complete or error, after which the stream closes. A comment line
// is sent every heartbeat interval to keep proxies from timing out.
//
// Closing the connection cancels the run between tasks; tasks already
// finished keep their status and the rest stay pending. The handler
// returns only after the run has stopped and released the session.
//
// Example:
//
//	GET /api/v1/sessions/{id}/stream
//
//	event: run_start
//	data: {"total":3}
//
//	event: task_complete
//	data: {"task_id":1,"status":"done","output":"...","reflection":"...","tools_used":["create_file"]}
func (s *Server) handleStream(c echo.Context) error {
	sess, err := s.store.Acquire(c.Param("id"))
	if err != nil {
		return err
	}

	sub, err := s.bus.Subscribe(sess.ID)
	if err != nil {
		sess.Release()
		return fmt.Errorf("subscribing to run events: %w", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(logging.WithSessionID(c.Request().Context(), sess.ID))
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()

	go func() {
		defer close(done)
		defer sess.Release()
		res, err := sess.Orchestrator.Execute(ctx)
		if err != nil {
			s.logger.Warn("run ended with error", zap.String("session.id", sess.ID), zap.Error(err))
			return
		}
		s.logger.Info("run ended",
			zap.String("session.id", sess.ID),
			zap.String("exit_reason", string(res.ExitReason)),
			zap.Int("iterations", res.Iterations),
		)
	}()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, msg.Data); err != nil {
				return nil
			}
			w.Flush()
			if events.Final(msg.Type) {
				return nil
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			w.Flush()

		case <-c.Request().Context().Done():
			s.logger.Info("stream client disconnected", zap.String("session.id", sess.ID))
			return nil
		}
	}
}
