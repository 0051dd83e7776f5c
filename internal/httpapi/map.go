package httpapi

import (
	"errors"
	"net/http"

	"gotham_viewer/viewer-go/internal/dragdrop"
	"gotham_viewer/viewer-go/internal/geometry"
	"gotham_viewer/viewer-go/internal/mapgw"
)

type dropBody struct {
	MIME string `json:"mime"`
	Data string `json:"data"`
}

func (h *Handler) handleGetMap(w http.ResponseWriter, r *http.Request) {
	if !h.ensureMaps(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.maps.State())
}

func (h *Handler) handleSetMapID(w http.ResponseWriter, r *http.Request) {
	var req idBody
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureMaps(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.maps.SetMapID(req.ID))
}

func (h *Handler) handleSetLayerID(w http.ResponseWriter, r *http.Request) {
	var req idBody
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureMaps(w) {
		return
	}
	run, state := h.maps.SetLayerID(req.ID)
	h.writeCommand(w, run, state)
}

func (h *Handler) handleDrop(w http.ResponseWriter, r *http.Request) {
	var req dropBody
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureMaps(w) {
		return
	}

	run, err := h.maps.Drop(req.MIME, req.Data)
	if err != nil {
		var perr *dragdrop.PayloadError
		if errors.As(err, &perr) {
			h.writeError(w, http.StatusBadRequest, "invalid_drag_payload", perr.Toast, map[string]any{"mime": perr.MIME})
			return
		}
		h.log.Error().Err(err).Msg("drop failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to apply drop", nil)
		return
	}
	h.writeCommand(w, run, h.maps.State())
}

func (h *Handler) handleLoadLayer(w http.ResponseWriter, r *http.Request) {
	if !h.ensureMaps(w) {
		return
	}
	run, err := h.maps.LoadLayer()
	switch {
	case errors.Is(err, mapgw.ErrMissingMapID):
		h.writeError(w, http.StatusConflict, "map_id_missing", err.Error(), nil)
		return
	case errors.Is(err, mapgw.ErrMissingLayerID):
		h.writeError(w, http.StatusConflict, "layer_id_missing", err.Error(), nil)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("load layer failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to start layer load", nil)
		return
	}
	h.writeCommand(w, run, h.maps.State())
}

func (h *Handler) handleMapFeatures(w http.ResponseWriter, r *http.Request) {
	if !h.ensureMaps(w) {
		return
	}
	fc := geometry.FeatureCollection(h.maps.State().Response)
	b, err := fc.MarshalJSON()
	if err != nil {
		h.log.Error().Err(err).Msg("encode features failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to encode features", nil)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *Handler) handleMapElements(w http.ResponseWriter, r *http.Request) {
	if !h.ensureMaps(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, geometry.Elements(h.maps.State().Response))
}
