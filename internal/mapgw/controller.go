// Package mapgw owns the map/layer gateway state: the selected map and
// layer, the last load response and its error.
package mapgw

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gotham_viewer/viewer-go/internal/broadcast"
	"gotham_viewer/viewer-go/internal/dragdrop"
	"gotham_viewer/viewer-go/internal/gotham"
	"gotham_viewer/viewer-go/internal/metrics"
	"gotham_viewer/viewer-go/internal/sequence"
)

const actionLoadLayer = "load_layer"

var (
	ErrMissingMapID   = errors.New("map id is not set")
	ErrMissingLayerID = errors.New("layer id is not set")
)

// API is the subset of the Gotham client the map gateway needs.
type API interface {
	FetchToken(ctx context.Context) (string, error)
	LoadLayers(ctx context.Context, token, mapID string, layerIDs []string) (*gotham.LoadLayersResponse, error)
}

// State is a snapshot of the gateway. Version increases on every change.
type State struct {
	Token    string                     `json:"-"`
	Loading  bool                       `json:"loading"`
	MapID    string                     `json:"mapId,omitempty"`
	LayerID  string                     `json:"layerId,omitempty"`
	Response *gotham.LoadLayersResponse `json:"response,omitempty"`
	Error    *gotham.APIError           `json:"error,omitempty"`
	Sequence uint64                     `json:"sequence"`
	Version  uint64                     `json:"version"`
}

type Controller struct {
	log     zerolog.Logger
	api     API
	seq     *sequence.Tracker
	updates *broadcast.Broadcaster[State]

	mu    sync.RWMutex
	state State
}

func New(log zerolog.Logger, api API, m *metrics.Metrics) *Controller {
	return &Controller{
		log: log.With().Str("component", "mapgw").Logger(),
		api: api,
		seq: sequence.NewTracker(func(action string, outcome sequence.Outcome, d time.Duration) {
			m.ObserveSequence(action, string(outcome), d)
		}),
		updates: broadcast.New[State](),
	}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe returns a channel that receives a snapshot after every change.
func (c *Controller) Subscribe() <-chan State {
	return c.updates.AddListener()
}

func (c *Controller) Unsubscribe(ch <-chan State) {
	c.updates.RemoveListener(ch)
}

// Close cancels in-flight loads and closes subscriber channels.
func (c *Controller) Close() {
	c.seq.Close()
	c.updates.Close()
}

func (c *Controller) mutate(fn func(*State)) State {
	c.mu.Lock()
	fn(&c.state)
	c.state.Version++
	snap := c.state
	c.mu.Unlock()
	c.updates.Broadcast(snap)
	return snap
}

// commit applies fn only while tk holds the newest load generation.
func (c *Controller) commit(tk sequence.Ticket, fn func(*State)) bool {
	return tk.Commit(func() { c.mutate(fn) })
}

// SetMapID stores a typed map id without loading.
func (c *Controller) SetMapID(id string) State {
	id = strings.TrimSpace(id)
	return c.mutate(func(s *State) { s.MapID = id })
}

// SetLayerID stores the layer id and starts a load when a map id is known.
func (c *Controller) SetLayerID(id string) (*sequence.Run, State) {
	id = strings.TrimSpace(id)
	var snap State
	run := c.claim(func() (string, string, bool) {
		snap = c.mutate(func(s *State) { s.LayerID = id })
		return snap.MapID, id, snap.MapID != "" && id != ""
	})
	return run, snap
}

// Drop applies a drag payload. A rejected payload changes nothing and
// returns *dragdrop.PayloadError. A map drop always starts a load, with no
// layer ids when none is set yet; a layer drop loads once a map id is known.
func (c *Controller) Drop(mime, data string) (*sequence.Run, error) {
	kind, id, err := dragdrop.Parse(mime, data)
	if err != nil {
		c.log.Warn().Err(err).Str("mime", mime).Msg("drag payload rejected")
		return nil, err
	}

	return c.claim(func() (string, string, bool) {
		snap := c.mutate(func(s *State) {
			switch kind {
			case dragdrop.KindMap:
				s.MapID = id
			case dragdrop.KindLayer:
				s.LayerID = id
			}
		})
		return snap.MapID, snap.LayerID, snap.MapID != ""
	}), nil
}

// LoadLayer starts a load of the current map and layer.
func (c *Controller) LoadLayer() (*sequence.Run, error) {
	var missing error
	run := c.claim(func() (string, string, bool) {
		snap := c.State()
		switch {
		case snap.MapID == "":
			missing = ErrMissingMapID
		case snap.LayerID == "":
			missing = ErrMissingLayerID
		}
		return snap.MapID, snap.LayerID, missing == nil
	})
	if missing != nil {
		return nil, missing
	}
	return run, nil
}

// claim updates or reads the identifiers while holding the load slot, so the
// ids a run loads always match the ids the newest trigger left in state.
// When ids reports no load, any load in flight is cancelled.
func (c *Controller) claim(ids func() (mapID, layerID string, ok bool)) *sequence.Run {
	var mapID, layerID string
	return c.seq.StartWith(actionLoadLayer, func(sequence.Ticket) bool {
		var ok bool
		mapID, layerID, ok = ids()
		if !ok && c.State().Loading {
			c.mutate(func(s *State) { s.Loading = false })
		}
		return ok
	}, func(ctx context.Context, tk sequence.Ticket) sequence.Outcome {
		return c.load(ctx, tk, mapID, layerID)
	})
}

func (c *Controller) load(ctx context.Context, tk sequence.Ticket, mapID, layerID string) sequence.Outcome {
	log := c.log.With().
		Str("action", tk.Action).
		Uint64("sequence", tk.Generation).
		Str("sequence_id", tk.ID.String()).
		Str("map_id", mapID).
		Str("layer_id", layerID).
		Logger()

	c.commit(tk, func(s *State) {
		s.Loading = true
		s.Sequence = tk.Generation
	})

	token, err := c.api.FetchToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return sequence.Aborted
		}
		log.Error().Err(err).Msg("token request failed")
		c.commit(tk, func(s *State) { s.Loading = false })
		return sequence.Aborted
	}
	c.commit(tk, func(s *State) { s.Token = token })

	layerIDs := []string{}
	if layerID != "" {
		layerIDs = append(layerIDs, layerID)
	}
	resp, err := c.api.LoadLayers(ctx, token, mapID, layerIDs)
	if err != nil {
		if ctx.Err() != nil {
			return sequence.Aborted
		}
		log.Warn().Err(err).Msg("load layers failed")
		c.commit(tk, func(s *State) {
			s.Error = gotham.AsAPIError(err)
			s.Loading = false
		})
		return sequence.Failed
	}

	if !c.commit(tk, func(s *State) {
		s.Response = resp
		s.Error = nil
		s.Loading = false
	}) {
		return sequence.Superseded
	}
	log.Info().Int("layers", len(resp.Layers)).Msg("layer loaded")
	return sequence.Completed
}
