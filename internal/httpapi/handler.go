package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gotham_viewer/viewer-go/internal/mapgw"
	"gotham_viewer/viewer-go/internal/metrics"
	"gotham_viewer/viewer-go/internal/milsym"
	"gotham_viewer/viewer-go/internal/sequence"
	"gotham_viewer/viewer-go/internal/targetgw"
)

type Handler struct {
	log     zerolog.Logger
	maps    *mapgw.Controller
	targets *targetgw.Controller
	metrics *metrics.Metrics
	symbols *milsym.Renderer

	upgrader  websocket.Upgrader
	keepalive time.Duration
	now       func() time.Time
}

// NewHandler wires the HTTP surface to the gateways. A nil gateway leaves its
// routes registered but answering 503.
func NewHandler(log zerolog.Logger, maps *mapgw.Controller, targets *targetgw.Controller, m *metrics.Metrics) *Handler {
	return &Handler{
		log:       log,
		maps:      maps,
		targets:   targets,
		metrics:   m,
		symbols:   milsym.NewRenderer(0),
		keepalive: 25 * time.Second,
		now:       time.Now,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	timeout := middleware.Timeout(15 * time.Second)

	// Health
	r.With(timeout).Get("/healthz", h.handleHealthz)
	r.With(timeout).Get("/readyz", h.handleReadyZ)
	r.With(timeout).Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api/v1", func(r chi.Router) {
		// Event streams stay open, so they sit outside the request timeout.
		r.Route("/events", func(r chi.Router) {
			r.Get("/ws", h.handleEventsWebsocket)
			r.Get("/stream", h.handleEventStream)
		})

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Route("/map", func(r chi.Router) {
				r.Get("/", h.handleGetMap)
				r.Put("/id", h.handleSetMapID)
				r.Put("/layer", h.handleSetLayerID)
				r.Post("/drop", h.handleDrop)
				r.Post("/load", h.handleLoadLayer)
				r.Get("/features", h.handleMapFeatures)
				r.Get("/elements", h.handleMapElements)
			})

			r.Route("/targets", func(r chi.Router) {
				r.Get("/", h.handleGetTargets)
				r.Put("/board", h.handleSelectBoard)
				r.Post("/load", h.handleLoadTargets)
				r.Get("/plot", h.handleTargetPlot)
				r.Put("/selected", h.handleSelectTarget)
				r.Route("/create", func(r chi.Router) {
					r.Get("/", h.handleCreateTemplate)
					r.Post("/", h.handleCreateTarget)
					r.Delete("/", h.handleClearCreate)
				})
				r.Route("/observations", func(r chi.Router) {
					r.Get("/", h.handleObservationTemplate)
					r.Post("/", h.handleAddObservation)
					r.Delete("/", h.handleClearObservation)
				})
			})

			r.Get("/symbols/{sidc}", h.handleSymbol)
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	if h.maps == nil || h.targets == nil {
		h.writeError(w, http.StatusServiceUnavailable, "gateway_unavailable", "gateways not configured", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureMaps(w http.ResponseWriter) bool {
	if h.maps == nil {
		h.writeError(w, http.StatusServiceUnavailable, "gateway_unavailable", "map gateway not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ensureTargets(w http.ResponseWriter) bool {
	if h.targets == nil {
		h.writeError(w, http.StatusServiceUnavailable, "gateway_unavailable", "target gateway not configured", nil)
		return false
	}
	return true
}

// runRef identifies a fetch sequence started by a command.
type runRef struct {
	Action     string `json:"action"`
	Generation uint64 `json:"generation"`
	ID         string `json:"id"`
}

type commandResponse struct {
	Run   *runRef `json:"run,omitempty"`
	State any     `json:"state"`
}

// writeCommand answers 202 when the command started a sequence and 200 when
// it only changed state.
func (h *Handler) writeCommand(w http.ResponseWriter, run *sequence.Run, state any) {
	if run == nil {
		h.writeJSON(w, http.StatusOK, commandResponse{State: state})
		return
	}
	h.writeJSON(w, http.StatusAccepted, commandResponse{
		Run: &runRef{
			Action:     run.Action,
			Generation: run.Generation,
			ID:         run.ID.String(),
		},
		State: state,
	})
}

type idBody struct {
	ID string `json:"id"`
}

type ridBody struct {
	RID string `json:"rid"`
}
