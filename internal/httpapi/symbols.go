package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gotham_viewer/viewer-go/internal/milsym"
)

func (h *Handler) handleSymbol(w http.ResponseWriter, r *http.Request) {
	sidc := chi.URLParam(r, "sidc")
	svg, err := h.symbols.SVG(sidc)
	if err != nil {
		if errors.Is(err, milsym.ErrInvalidSIDC) {
			h.writeError(w, http.StatusBadRequest, "invalid_sidc", "symbol code is not a valid SIDC", map[string]any{"sidc": sidc})
			return
		}
		h.log.Error().Err(err).Str("sidc", sidc).Msg("render symbol failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to render symbol", nil)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(svg)
}
