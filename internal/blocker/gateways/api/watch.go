package api

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/haukened/distraction-block/internal/blocker/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// The API listens on loopback; any local page may watch.
func checkOrigin(r *http.Request) bool {
	return true
}

// watch streams the status object on connect and after every change.
func (s *Server) watch(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	ch, unsubscribe := s.settings.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Hijacked connections are invisible to the server, so watch for the
	// peer going away ourselves.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	st, err := s.settings.Status(ctx)
	if err != nil {
		return nil
	}
	if err := ws.WriteJSON(st); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return nil
		case next := <-ch:
			if err := ws.WriteJSON(domain.StatusOf(next)); err != nil {
				s.logger.Debug(map[string]any{"error": err}, "watch client gone")
				return nil
			}
		}
	}
}
