package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/haukened/distraction-block/internal/blocker/domain"
)

type navigationRequest struct {
	TabID   int    `json:"tabId" validate:"gte=-1"`
	FrameID int    `json:"frameId" validate:"gte=-1"`
	URL     string `json:"url" validate:"max=8192"`
	Kind    string `json:"kind" validate:"omitempty,oneof=committed updated"`
}

func (r navigationRequest) event() domain.NavigationEvent {
	return domain.NavigationEvent{
		TabID:   r.TabID,
		FrameID: r.FrameID,
		URL:     r.URL,
		Kind:    domain.NavigationKind(r.Kind),
	}
}

type navigationResponse struct {
	Redirect bool   `json:"redirect"`
	TabID    *int   `json:"tabId,omitempty"`
	URL      string `json:"url,omitempty"`
}

type focusRequest struct {
	Kind string `json:"kind" validate:"omitempty,oneof=window tab"`
	ID   int    `json:"id" validate:"gte=-1"`
}

// postMessage implements updateBlocking and getBlockingStatus.
func (s *Server) postMessage(c echo.Context) error {
	var m domain.Message
	if err := c.Bind(&m); err != nil {
		return c.JSON(http.StatusBadRequest, domain.Failure(errors.New("malformed message")))
	}
	if err := m.Validate(); err != nil {
		s.logger.Warn(map[string]any{"action": string(m.Action)}, "Unknown message action")
		return c.JSON(http.StatusBadRequest, domain.Failure(err))
	}

	ctx := c.Request().Context()
	switch m.Action {
	case domain.ActionGetBlockingStatus:
		st, err := s.settings.Status(ctx)
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, domain.Failure(err))
		}
		return c.JSON(http.StatusOK, st)
	default:
		if err := s.settings.Update(ctx, m.Settings()); err != nil {
			return c.JSON(http.StatusInternalServerError, domain.Failure(err))
		}
		return c.JSON(http.StatusOK, domain.Ack{Success: true})
	}
}

func (s *Server) postNavigation(c echo.Context) error {
	var req navigationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed navigation event")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	r, ok, err := s.navigator.HandleNavigation(c.Request().Context(), req.event())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if !ok {
		return c.JSON(http.StatusOK, navigationResponse{Redirect: false})
	}
	return c.JSON(http.StatusOK, navigationResponse{Redirect: true, TabID: &r.TabID, URL: r.URL})
}

// postFocus refreshes the cache from the store. An empty body counts as a
// window focus.
func (s *Server) postFocus(c echo.Context) error {
	var req focusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed focus event")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ev := domain.FocusEvent{Kind: domain.FocusKind(req.Kind), ID: req.ID}
	if !ev.Relevant() {
		return c.JSON(http.StatusOK, domain.Ack{Success: true})
	}
	if err := s.settings.Refresh(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, domain.Failure(err))
	}
	return c.JSON(http.StatusOK, domain.Ack{Success: true})
}
