// Package targetgw owns the target gateway state: the selected board, its
// assembled targets and the create and add-observation results.
package targetgw

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gotham_viewer/viewer-go/internal/broadcast"
	"gotham_viewer/viewer-go/internal/forms"
	"gotham_viewer/viewer-go/internal/gotham"
	"gotham_viewer/viewer-go/internal/metrics"
	"gotham_viewer/viewer-go/internal/sequence"
)

const (
	actionLoadTargets    = "load_targets"
	actionCreateTarget   = "create_target"
	actionAddObservation = "add_observation"

	createErrorFallback      = "An error occurred while creating target."
	observationErrorFallback = "An error occurred while adding observation."

	defaultObservationRefreshDelay = 3 * time.Second
)

var ErrMissingBoard = errors.New("target board is not set")

// API is the subset of the Gotham client the target gateway needs.
type API interface {
	FetchToken(ctx context.Context) (string, error)
	GetTargetCollection(ctx context.Context, token, boardRID string) (*gotham.TargetCollectionResponse, error)
	GetTarget(ctx context.Context, token, targetRID string) (*gotham.TargetDetailResponse, error)
	CreateTarget(ctx context.Context, token string, req gotham.CreateTargetRequest) (gotham.RawResponse, error)
	UpdateTarget(ctx context.Context, token, targetRID string, req gotham.UpdateTargetRequest) (gotham.RawResponse, error)
}

type Options struct {
	// ObservationRefreshDelay is the wait between a successful observation
	// and the board re-fetch. Zero means the 3s default; negative means none.
	ObservationRefreshDelay time.Duration
	// CreateRefreshDelay is the wait between a successful create and the
	// board re-fetch.
	CreateRefreshDelay time.Duration
}

// State is a snapshot of the gateway. Version increases on every change.
type State struct {
	Token               string             `json:"-"`
	Loading             bool               `json:"loading"`
	BoardRID            string             `json:"boardRid,omitempty"`
	Targets             []gotham.Target    `json:"targets"`
	TargetsError        *gotham.APIError   `json:"targetsError,omitempty"`
	SelectedRID         string             `json:"selectedRid,omitempty"`
	CreateResponse      gotham.RawResponse `json:"createResponse,omitempty"`
	CreateError         string             `json:"createError,omitempty"`
	ObservationResponse gotham.RawResponse `json:"observationResponse,omitempty"`
	ObservationError    string             `json:"observationError,omitempty"`
	Sequence            uint64             `json:"sequence"`
	Version             uint64             `json:"version"`
}

type Controller struct {
	log     zerolog.Logger
	api     API
	metrics *metrics.Metrics
	opts    Options
	seq     *sequence.Tracker
	updates *broadcast.Broadcaster[State]

	mu    sync.RWMutex
	state State
	// A successful create or observation re-fetches the board once; clearing
	// the response re-arms it.
	createRefreshArmed      bool
	observationRefreshArmed bool
}

func New(log zerolog.Logger, api API, m *metrics.Metrics, opts Options) *Controller {
	if opts.ObservationRefreshDelay == 0 {
		opts.ObservationRefreshDelay = defaultObservationRefreshDelay
	}
	if opts.ObservationRefreshDelay < 0 {
		opts.ObservationRefreshDelay = 0
	}
	if opts.CreateRefreshDelay < 0 {
		opts.CreateRefreshDelay = 0
	}
	return &Controller{
		log:     log.With().Str("component", "targetgw").Logger(),
		api:     api,
		metrics: m,
		opts:    opts,
		seq: sequence.NewTracker(func(action string, outcome sequence.Outcome, d time.Duration) {
			m.ObserveSequence(action, string(outcome), d)
		}),
		updates:                 broadcast.New[State](),
		state:                   State{Targets: []gotham.Target{}},
		createRefreshArmed:      true,
		observationRefreshArmed: true,
	}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Target returns the board entry with the given rid.
func (c *Controller) Target(rid string) (gotham.Target, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.state.Targets {
		if t.RID == rid {
			return t, true
		}
	}
	return gotham.Target{}, false
}

func (c *Controller) Subscribe() <-chan State {
	return c.updates.AddListener()
}

func (c *Controller) Unsubscribe(ch <-chan State) {
	c.updates.RemoveListener(ch)
}

// Close cancels in-flight sequences and closes subscriber channels.
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

func (c *Controller) commit(tk sequence.Ticket, fn func(*State)) bool {
	return tk.Commit(func() { c.mutate(fn) })
}

func (c *Controller) sequenceLogger(tk sequence.Ticket) zerolog.Logger {
	return c.log.With().
		Str("action", tk.Action).
		Uint64("sequence", tk.Generation).
		Str("sequence_id", tk.ID.String()).
		Logger()
}

// SelectBoard switches to another board. The target list and selection are
// cleared, and a load starts when rid is not empty. The board switch and
// the load generation are claimed together, so the newest call wins both.
func (c *Controller) SelectBoard(rid string) *sequence.Run {
	rid = strings.TrimSpace(rid)
	return c.seq.StartWith(actionLoadTargets, func(sequence.Ticket) bool {
		c.mutate(func(s *State) {
			s.BoardRID = rid
			s.Loading = false
			s.Targets = []gotham.Target{}
			s.TargetsError = nil
			s.SelectedRID = ""
		})
		return rid != ""
	}, func(ctx context.Context, tk sequence.Ticket) sequence.Outcome {
		return c.loadTargets(ctx, tk, rid, true, 0)
	})
}

// SelectTarget marks a target as selected. An empty rid clears the selection.
func (c *Controller) SelectTarget(rid string) State {
	rid = strings.TrimSpace(rid)
	return c.mutate(func(s *State) { s.SelectedRID = rid })
}

// LoadTargets re-fetches the current board with the loading flag raised.
func (c *Controller) LoadTargets() (*sequence.Run, error) {
	return c.reload(true, 0)
}

// RefreshTargets re-fetches the current board without raising the loading
// flag, waiting delay between the token and board requests. It shares the
// latest-wins slot with LoadTargets.
func (c *Controller) RefreshTargets(delay time.Duration) (*sequence.Run, error) {
	return c.reload(false, delay)
}

// reload reads the board while holding the load slot so a concurrent
// SelectBoard cannot slip between the read and the new generation.
func (c *Controller) reload(loading bool, delay time.Duration) (*sequence.Run, error) {
	var board string
	run := c.seq.StartWith(actionLoadTargets, func(sequence.Ticket) bool {
		board = c.State().BoardRID
		return board != ""
	}, func(ctx context.Context, tk sequence.Ticket) sequence.Outcome {
		return c.loadTargets(ctx, tk, board, loading, delay)
	})
	if run == nil {
		return nil, ErrMissingBoard
	}
	return run, nil
}

func (c *Controller) loadTargets(ctx context.Context, tk sequence.Ticket, board string, loading bool, delay time.Duration) sequence.Outcome {
	log := c.sequenceLogger(tk).With().Str("board_rid", board).Logger()

	c.commit(tk, func(s *State) {
		s.Sequence = tk.Generation
		if loading {
			s.Loading = true
		}
	})
	stopLoading := func(s *State) { s.Loading = false }

	token, err := c.api.FetchToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return sequence.Aborted
		}
		log.Error().Err(err).Msg("token request failed")
		c.commit(tk, stopLoading)
		return sequence.Aborted
	}
	c.commit(tk, func(s *State) { s.Token = token })

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return sequence.Aborted
		case <-timer.C:
		}
	}

	collection, err := c.api.GetTargetCollection(ctx, token, board)
	if err != nil {
		if ctx.Err() != nil {
			return sequence.Aborted
		}
		log.Warn().Err(err).Msg("target board request failed")
		c.commit(tk, func(s *State) {
			s.TargetsError = gotham.AsAPIError(err)
			s.Loading = false
		})
		return sequence.Failed
	}

	columns := collection.BoardColumns()
	if columns == nil {
		log.Warn().Msg("target board response has no columns")
		c.commit(tk, stopLoading)
		return sequence.Completed
	}

	targets := []gotham.Target{}
	dropped := 0
	for _, col := range columns {
		for _, ref := range col.Targets {
			detail, err := c.api.GetTarget(ctx, token, ref.TargetRID)
			if err != nil {
				if ctx.Err() != nil {
					return sequence.Aborted
				}
				dropped++
				c.metrics.IncDroppedTargetDetail()
				log.Warn().Err(err).Str("target_rid", ref.TargetRID).Str("column", col.Name).Msg("target detail request failed; dropping target")
				continue
			}
			targets = append(targets, detail.AsTarget(col.Name))
		}
	}

	if !c.commit(tk, func(s *State) {
		s.Targets = targets
		s.TargetsError = nil
		s.Loading = false
	}) {
		return sequence.Superseded
	}
	log.Info().Int("targets", len(targets)).Int("dropped", dropped).Msg("target board loaded")
	return sequence.Completed
}

// CreateTarget validates form and, when it is valid, starts the create
// sequence. An invalid form returns *forms.ValidationError and sends nothing.
func (c *Controller) CreateTarget(form forms.CreateTargetForm) (*sequence.Run, error) {
	req, err := form.Submit()
	if err != nil {
		return nil, err
	}
	return c.seq.Start(actionCreateTarget, func(ctx context.Context, tk sequence.Ticket) sequence.Outcome {
		log := c.sequenceLogger(tk)
		token, ok := c.token(ctx, tk, log)
		if !ok {
			return sequence.Aborted
		}
		resp, err := c.api.CreateTarget(ctx, token, req)
		return c.finishWrite(ctx, tk, log, resp, err, writeSlots{
			fallback: createErrorFallback,
			delay:    c.opts.CreateRefreshDelay,
			armed:    &c.createRefreshArmed,
			set: func(s *State, resp gotham.RawResponse, msg string) {
				if resp != nil {
					s.CreateResponse = resp
				}
				s.CreateError = msg
			},
		})
	}), nil
}

// AddObservation validates form and, when it is valid, starts the update
// sequence that records the observation on the target.
func (c *Controller) AddObservation(form forms.ObservationForm) (*sequence.Run, error) {
	rid, req, err := form.Submit()
	if err != nil {
		return nil, err
	}
	return c.seq.Start(actionAddObservation, func(ctx context.Context, tk sequence.Ticket) sequence.Outcome {
		log := c.sequenceLogger(tk).With().Str("target_rid", rid).Logger()
		token, ok := c.token(ctx, tk, log)
		if !ok {
			return sequence.Aborted
		}
		resp, err := c.api.UpdateTarget(ctx, token, rid, req)
		return c.finishWrite(ctx, tk, log, resp, err, writeSlots{
			fallback: observationErrorFallback,
			delay:    c.opts.ObservationRefreshDelay,
			armed:    &c.observationRefreshArmed,
			set: func(s *State, resp gotham.RawResponse, msg string) {
				if resp != nil {
					s.ObservationResponse = resp
				}
				s.ObservationError = msg
			},
		})
	}), nil
}

func (c *Controller) token(ctx context.Context, tk sequence.Ticket, log zerolog.Logger) (string, bool) {
	token, err := c.api.FetchToken(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("token request failed")
		}
		return "", false
	}
	c.commit(tk, func(s *State) { s.Token = token })
	return token, true
}

type writeSlots struct {
	fallback string
	delay    time.Duration
	armed    *bool
	set      func(s *State, resp gotham.RawResponse, msg string)
}

func (c *Controller) finishWrite(ctx context.Context, tk sequence.Ticket, log zerolog.Logger, resp gotham.RawResponse, err error, slots writeSlots) sequence.Outcome {
	if err != nil {
		if ctx.Err() != nil {
			return sequence.Aborted
		}
		msg := gotham.Message(err, slots.fallback)
		log.Warn().Err(err).Msg("gotham write failed")
		c.commit(tk, func(s *State) { slots.set(s, nil, msg) })
		return sequence.Failed
	}

	if len(resp) == 0 {
		resp = json.RawMessage(`{}`)
	}
	refresh := false
	if !c.commit(tk, func(s *State) {
		slots.set(s, resp, "")
		refresh = *slots.armed
		*slots.armed = false
	}) {
		return sequence.Superseded
	}

	if refresh {
		if _, err := c.RefreshTargets(slots.delay); err != nil {
			log.Debug().Err(err).Msg("no board selected; skipping refresh")
		}
	}
	return sequence.Completed
}

// ClearCreateResponse drops the create result and re-arms the follow-up
// refresh. Editing the create form calls this.
func (c *Controller) ClearCreateResponse() State {
	return c.mutate(func(s *State) {
		s.CreateResponse = nil
		s.CreateError = ""
		c.createRefreshArmed = true
	})
}

// ClearObservationResponse drops the observation result and re-arms the
// follow-up refresh.
func (c *Controller) ClearObservationResponse() State {
	return c.mutate(func(s *State) {
		s.ObservationResponse = nil
		s.ObservationError = ""
		c.observationRefreshArmed = true
	})
}
