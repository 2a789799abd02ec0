package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"orderchain/core"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS streams committed events. Clients resume with ?cursor=N to
// receive retained events after sequence N before live updates.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are only needed to observe the client closing the connection.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			s.logger.Debug("event stream ended", "error", err.Error())
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor, prefix string) error {
	updates, cancel, backlog, err := s.node.SubscribeEvents(ctx, cursor)
	if err != nil {
		return conn.Close(websocket.StatusPolicyViolation, err.Error())
	}
	defer cancel()

	lastCursor := cursor
	for _, update := range backlog {
		lastCursor = update.Cursor
		if !matchesPrefix(update, prefix) {
			continue
		}
		if err := writeEventUpdate(ctx, conn, update); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				// The node dropped this subscriber for falling behind. The
				// client resumes from the last cursor it received.
				s.logger.Warn("event subscriber fell behind", "prefix", prefix, "cursor", lastCursor)
				return conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind, resume from cursor")
			}
			lastCursor = update.Cursor
			if !matchesPrefix(update, prefix) {
				continue
			}
			if err := writeEventUpdate(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func matchesPrefix(update core.EventUpdate, prefix string) bool {
	return prefix == "" || strings.HasPrefix(update.Event.Type, prefix)
}

func writeEventUpdate(ctx context.Context, conn *websocket.Conn, update core.EventUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
