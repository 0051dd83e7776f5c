package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"gotham_viewer/viewer-go/internal/forms"
	"gotham_viewer/viewer-go/internal/geometry"
	"gotham_viewer/viewer-go/internal/sequence"
	"gotham_viewer/viewer-go/internal/targetgw"
)

func (h *Handler) handleGetTargets(w http.ResponseWriter, r *http.Request) {
	if !h.ensureTargets(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.targets.State())
}

func (h *Handler) handleSelectBoard(w http.ResponseWriter, r *http.Request) {
	var req ridBody
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureTargets(w) {
		return
	}
	run := h.targets.SelectBoard(req.RID)
	h.writeCommand(w, run, h.targets.State())
}

func (h *Handler) handleLoadTargets(w http.ResponseWriter, r *http.Request) {
	if !h.ensureTargets(w) {
		return
	}
	run, err := h.targets.LoadTargets()
	if err != nil {
		if errors.Is(err, targetgw.ErrMissingBoard) {
			h.writeError(w, http.StatusConflict, "board_missing", err.Error(), nil)
			return
		}
		h.log.Error().Err(err).Msg("load targets failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to start target load", nil)
		return
	}
	h.writeCommand(w, run, h.targets.State())
}

func (h *Handler) handleTargetPlot(w http.ResponseWriter, r *http.Request) {
	if !h.ensureTargets(w) {
		return
	}
	plot := geometry.PartitionTargets(h.targets.State().Targets)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		h.writeJSON(w, http.StatusOK, plot)
	case "geojson":
		b, err := geometry.MarkerCollection(plot.Markers).MarshalJSON()
		if err != nil {
			h.log.Error().Err(err).Msg("encode markers failed")
			h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to encode markers", nil)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	default:
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid format", map[string]any{"format": format})
	}
}

func (h *Handler) handleSelectTarget(w http.ResponseWriter, r *http.Request) {
	var req ridBody
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureTargets(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.targets.SelectTarget(req.RID))
}

// handleCreateTemplate returns the create form prefilled for a map click.
func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := queryCoordinates(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid coordinates", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureTargets(w) {
		return
	}
	board := h.targets.State().BoardRID
	h.writeJSON(w, http.StatusOK, forms.NewCreateTargetForm(board, lat, lon, h.now()))
}

func (h *Handler) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req forms.CreateTargetForm
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureTargets(w) {
		return
	}
	run, err := h.targets.CreateTarget(req)
	h.writeFormResult(w, run, err)
}

func (h *Handler) handleClearCreate(w http.ResponseWriter, r *http.Request) {
	if !h.ensureTargets(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.targets.ClearCreateResponse())
}

// handleObservationTemplate returns the add-observation form for a board
// target, prefilled for a map click.
func (h *Handler) handleObservationTemplate(w http.ResponseWriter, r *http.Request) {
	rid := strings.TrimSpace(r.URL.Query().Get("rid"))
	if rid == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "rid is required", nil)
		return
	}
	lat, lon, err := queryCoordinates(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid coordinates", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureTargets(w) {
		return
	}
	target, ok := h.targets.Target(rid)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "target not on the selected board", map[string]any{"rid": rid})
		return
	}
	h.writeJSON(w, http.StatusOK, forms.NewObservationForm(target, lat, lon, h.now()))
}

func (h *Handler) handleAddObservation(w http.ResponseWriter, r *http.Request) {
	var req forms.ObservationForm
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureTargets(w) {
		return
	}
	run, err := h.targets.AddObservation(req)
	h.writeFormResult(w, run, err)
}

func (h *Handler) handleClearObservation(w http.ResponseWriter, r *http.Request) {
	if !h.ensureTargets(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.targets.ClearObservationResponse())
}

func (h *Handler) writeFormResult(w http.ResponseWriter, run *sequence.Run, err error) {
	if err != nil {
		var verr *forms.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusUnprocessableEntity, "invalid_form", "form has invalid fields", map[string]any{"fields": verr.Names()})
			return
		}
		h.log.Error().Err(err).Msg("form submit failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to submit form", nil)
		return
	}
	h.writeCommand(w, run, h.targets.State())
}

func queryCoordinates(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()
	lat, err := queryFloat(q.Get("lat"), "lat", 90)
	if err != nil {
		return 0, 0, err
	}
	lon, err := queryFloat(q.Get("lon"), "lon", 180)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func queryFloat(raw, name string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if v < -limit || v > limit {
		return 0, fmt.Errorf("%s must be between %v and %v", name, -limit, limit)
	}
	return v, nil
}
