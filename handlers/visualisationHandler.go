package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"

	"hdbinsights/services/chart"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// VisualisationHandler serves stored chart artifacts by id.
type VisualisationHandler struct {
	store  *chart.ArtifactStore
	logger zerolog.Logger
}

func NewVisualisationHandler(store *chart.ArtifactStore, logger zerolog.Logger) *VisualisationHandler {
	return &VisualisationHandler{store: store, logger: logger}
}

func (h *VisualisationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/visualisations/{id}", h.GetFigure).Methods("GET")
	router.HandleFunc("/visualisations/{id}/image", h.GetImage).Methods("GET")
}

func (h *VisualisationHandler) GetFigure(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.FigurePath(mux.Vars(r)["id"])
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	h.serveFile(w, path, "application/json")
}

func (h *VisualisationHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.ImagePath(mux.Vars(r)["id"])
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	h.serveFile(w, path, "image/png")
}

func (h *VisualisationHandler) serveFile(w http.ResponseWriter, path, contentType string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeErrorResponse(w, http.StatusNotFound, "visualisation not found")
			return
		}
		h.logger.Error().Err(err).Str("path", path).Msg("Failed to read visualisation")
		writeErrorResponse(w, http.StatusInternalServerError, "failed to read visualisation")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
