package rpc

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"nftylend/core/types"
)

const wsWriteTimeout = 10 * time.Second

// wsEventEnvelope is the wire form of a streamed ledger event.
type wsEventEnvelope struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// handleEventsWS streams the event log over a websocket. A ?cursor=N query
// parameter resumes the stream after sequence N; omitting it replays the
// entire log so a fresh indexer can rebuild ledger state from scratch.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event stream not available", http.StatusServiceUnavailable)
		return
	}

	var cursor uint64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := r.Context()
	updates, cancel, backlog := s.events.Subscribe(ctx, cursor)
	defer cancel()

	for _, evt := range backlog {
		if err := writeWSEvent(ctx, conn, evt); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-updates:
			if !ok {
				return
			}
			if err := writeWSEvent(ctx, conn, evt); err != nil {
				return
			}
		}
	}
}

func writeWSEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, wsEventEnvelope{
		Sequence:   evt.Sequence,
		Type:       evt.Type,
		Attributes: evt.Attributes,
	})
}
