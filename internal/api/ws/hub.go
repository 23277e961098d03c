package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/pulse/internal/dashboard"
	"github.com/gosuda/pulse/internal/domain"
)

// Feed streams serialized snapshots of a dashboard scope. Both the Redis
// snapshot store and the in-process dashboard service satisfy it.
type Feed interface {
	Watch(ctx context.Context, projectID int64) (<-chan []byte, func(), error)
}

// SnapshotReader returns the current snapshot of a scope.
type SnapshotReader interface {
	Snapshot(ctx context.Context, projectID int64) (*dashboard.Snapshot, error)
}

// Hub serves dashboard snapshots over WebSocket.
type Hub struct {
	feed      Feed
	snapshots SnapshotReader
	origins   []string
}

// NewHub creates a hub. origins lists the host patterns allowed to open a
// connection from a browser on another origin.
func NewHub(feed Feed, snapshots SnapshotReader, origins []string) *Hub {
	return &Hub{feed: feed, snapshots: snapshots, origins: origins}
}

// ServeDashboard streams snapshots of the scope named by the projectID URL
// parameter, or of the cross-project dashboard when it is absent. The
// current snapshot, when one exists, is sent first.
func (h *Hub) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	projectID := dashboard.AllProjects
	if raw := chi.URLParam(r, "projectID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid project id", http.StatusBadRequest)
			return
		}
		projectID = id
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Subscribers only listen; reading is left to CloseRead so control
	// frames are handled and ctx ends when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.feed.Watch(ctx, projectID)
	if err != nil {
		log.Error().Err(err).Int64("project_id", projectID).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	if err := h.sendCurrent(ctx, conn, projectID); err != nil {
		log.Debug().Err(err).Msg("websocket write")
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := h.write(ctx, conn, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

func (h *Hub) sendCurrent(ctx context.Context, conn *websocket.Conn, projectID int64) error {
	snap, err := h.snapshots.Snapshot(ctx, projectID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Int64("project_id", projectID).Msg("current snapshot unavailable")
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return h.write(ctx, conn, payload)
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	frame, err := snapshotFrame(payload)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, frame)
}
