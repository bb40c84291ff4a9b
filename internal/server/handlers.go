package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cybergodev/scorehider"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// registerRoutes sets up the API endpoints.
func (s *Server) registerRoutes() {
	v1 := s.echo.Group("/api/v1")
	v1.POST("/hide", s.handleHide)

	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.GET("/sessions/:id/document", s.handleDocument)
	v1.POST("/sessions/:id/scan", s.handleScan)
	v1.POST("/sessions/:id/mutations", s.handleMutation)
	v1.POST("/sessions/:id/scores/:scoreID/reveal", s.handleReveal)
	v1.POST("/sessions/:id/commands", s.handleCommand)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Sessions: s.sessions.Len()})
}

// HideRequest is the request body for POST /api/v1/hide.
type HideRequest struct {
	HTML string `json:"html"`
}

// HideResponse is the response body for POST /api/v1/hide.
type HideResponse struct {
	HTML           string                   `json:"html"`
	Scores         []scorehider.HiddenScore `json:"scores"`
	PreHidden      int                      `json:"preHidden"`
	Restored       int                      `json:"restored"`
	ProcessingTime time.Duration            `json:"processingTimeNs"`
}

// handleHide hides the scores of a whole document in one shot.
func (s *Server) handleHide(c echo.Context) error {
	var req HideRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid hide request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.HTML == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "html field is required")
	}

	result, err := s.processor.Process(req.HTML)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, HideResponse{
		HTML:           result.HTML,
		Scores:         nonNil(result.Scores),
		PreHidden:      result.PreHidden,
		Restored:       result.Restored,
		ProcessingTime: result.ProcessingTime,
	})
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
// Settings takes the persisted settings shape; it is optional.
type CreateSessionRequest struct {
	HTML     string          `json:"html"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// SessionResponse describes a session and what the last event did to it.
type SessionResponse struct {
	ID      string                   `json:"id"`
	State   scorehider.State         `json:"state"`
	Outcome *scorehider.Outcome      `json:"outcome,omitempty"`
	Scores  []scorehider.HiddenScore `json:"scores"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid session request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.HTML == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "html field is required")
	}

	var settings *scorehider.Settings
	if len(req.Settings) > 0 {
		parsed, err := scorehider.ParseSettings(req.Settings)
		if err != nil {
			return err
		}
		settings = &parsed
	}

	ps, out, err := s.open(req.HTML, settings)
	if err != nil {
		return err
	}
	resp, err := s.describe(c, ps, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

// describe reads the session state and score list on the session loop.
func (s *Server) describe(c echo.Context, ps *pageSession, out *scorehider.Outcome) (SessionResponse, error) {
	resp := SessionResponse{ID: ps.id, Outcome: out}
	err := ps.sched.Do(c.Request().Context(), func(sess *scorehider.Session) error {
		resp.State = sess.State()
		resp.Scores = nonNil(sess.Scores())
		return nil
	})
	return resp, err
}

func (s *Server) handleGetSession(c echo.Context) error {
	ps, err := s.lookup(c)
	if err != nil {
		return err
	}
	resp, err := s.describe(c, ps, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if !s.sessions.Delete(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// handleDocument renders the session's current markup.
func (s *Server) handleDocument(c echo.Context) error {
	ps, err := s.lookup(c)
	if err != nil {
		return err
	}
	var page string
	err = ps.sched.Do(c.Request().Context(), func(sess *scorehider.Session) error {
		var err error
		page, err = sess.HTML()
		return err
	})
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, page)
}

// submit posts ev to the session named in the path and replies with the
// outcome.
func (s *Server) submit(c echo.Context, ev scorehider.Event) error {
	ps, err := s.lookup(c)
	if err != nil {
		return err
	}
	out, err := ps.sched.Submit(c.Request().Context(), ev)
	if err != nil {
		return err
	}
	resp, err := s.describe(c, ps, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScan(c echo.Context) error {
	return s.submit(c, scorehider.Event{Kind: scorehider.EventDocumentReady})
}

// MutationRequest is the request body for POST /sessions/:id/mutations.
// With HTML set the fragment is appended under ParentID (body when empty);
// without it the request reports Added nodes inserted by other means.
type MutationRequest struct {
	ParentID string `json:"parentId,omitempty"`
	HTML     string `json:"html,omitempty"`
	Added    int    `json:"added,omitempty"`
}

func (s *Server) handleMutation(c echo.Context) error {
	var req MutationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ev := scorehider.Event{Kind: scorehider.EventMutation, Added: req.Added}
	if req.HTML != "" {
		ev = scorehider.Event{Kind: scorehider.EventAppendHTML, ParentID: req.ParentID, HTML: req.HTML}
	}
	return s.submit(c, ev)
}

// RevealRequest is the optional body of a reveal: where the score sits on
// screen, for anchoring its reaction.
type RevealRequest struct {
	Bounds scorehider.Rect `json:"bounds"`
}

func (s *Server) handleReveal(c echo.Context) error {
	var req RevealRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	return s.submit(c, scorehider.Event{
		Kind:    scorehider.EventClick,
		ScoreID: c.Param("scoreID"),
		Bounds:  req.Bounds,
	})
}

func (s *Server) handleCommand(c echo.Context) error {
	var cmd scorehider.Command
	if err := c.Bind(&cmd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if cmd.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action field is required")
	}
	return s.submit(c, scorehider.Event{Kind: scorehider.EventCommand, Command: cmd})
}

func nonNil(scores []scorehider.HiddenScore) []scorehider.HiddenScore {
	if scores == nil {
		return []scorehider.HiddenScore{}
	}
	return scores
}
