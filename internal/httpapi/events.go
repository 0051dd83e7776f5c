package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/launchdarkly/eventsource"

	"gotham_viewer/viewer-go/internal/mapgw"
	"gotham_viewer/viewer-go/internal/targetgw"
)

const (
	eventMap     = "map"
	eventTargets = "targets"

	wsWriteWait = 10 * time.Second
)

// stateEvent is one gateway snapshot on the SSE stream. The id is
// "<gateway>-<version>".
type stateEvent struct {
	id   string
	name string
	data string
}

func (e stateEvent) Id() string    { return e.id }
func (e stateEvent) Event() string { return e.name }
func (e stateEvent) Data() string  { return e.data }

type wsMessage struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
	State   any    `json:"state"`
}

type sendFunc func(kind string, version uint64, state any) error

// pumpStates sends the current snapshot of each configured gateway, then
// every newer snapshot, until done closes, a gateway shuts down or send
// fails. Snapshots older than one already sent are skipped.
func (h *Handler) pumpStates(done <-chan struct{}, send sendFunc, ping func() error) error {
	var (
		mapCh       <-chan mapgw.State
		targetCh    <-chan targetgw.State
		mapSeen     uint64
		targetsSeen uint64
	)

	// Subscribe before reading the current state so no change falls between.
	if h.maps != nil {
		mapCh = h.maps.Subscribe()
		defer h.maps.Unsubscribe(mapCh)
	}
	if h.targets != nil {
		targetCh = h.targets.Subscribe()
		defer h.targets.Unsubscribe(targetCh)
	}
	if h.maps != nil {
		s := h.maps.State()
		mapSeen = s.Version
		if err := send(eventMap, s.Version, s); err != nil {
			return err
		}
	}
	if h.targets != nil {
		s := h.targets.State()
		targetsSeen = s.Version
		if err := send(eventTargets, s.Version, s); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case s, ok := <-mapCh:
			if !ok {
				return nil
			}
			if s.Version <= mapSeen {
				continue
			}
			mapSeen = s.Version
			if err := send(eventMap, s.Version, s); err != nil {
				return err
			}
		case s, ok := <-targetCh:
			if !ok {
				return nil
			}
			if s.Version <= targetsSeen {
				continue
			}
			targetsSeen = s.Version
			if err := send(eventTargets, s.Version, s); err != nil {
				return err
			}
		case <-ticker.C:
			if err := ping(); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) ensureAnyGateway(w http.ResponseWriter) bool {
	if h.maps == nil && h.targets == nil {
		h.writeError(w, http.StatusServiceUnavailable, "gateway_unavailable", "no gateway configured", nil)
		return false
	}
	return true
}

// handleEventStream pushes gateway snapshots as server-sent events named
// "map" and "targets".
func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAnyGateway(w) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream", nil)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream; charset=utf-8")
	hdr.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := eventsource.NewEncoder(w, false)
	err := h.pumpStates(r.Context().Done(), func(kind string, version uint64, state any) error {
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		if err := enc.Encode(stateEvent{id: fmt.Sprintf("%s-%d", kind, version), name: kind, data: string(data)}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, func() error {
		if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		h.log.Debug().Err(err).Msg("event stream closed")
	}
}

// handleEventsWebsocket pushes gateway snapshots as JSON text frames of the
// form {"type":"map"|"targets","version":n,"state":{...}}. Client frames are
// read and discarded.
func (h *Handler) handleEventsWebsocket(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAnyGateway(w) {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.pumpStates(closed, func(kind string, version uint64, state any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(wsMessage{Type: kind, Version: version, State: state})
	}, func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
	})
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket closed")
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
		time.Now().Add(wsWriteWait))
}
