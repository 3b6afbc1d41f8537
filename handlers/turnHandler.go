package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"hdbinsights/db"
	"hdbinsights/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type TurnHistory interface {
	GetTurnByID(ctx context.Context, id int) (*models.TurnRecord, error)
	ListTurns(ctx context.Context, limit int) ([]*models.TurnRecord, error)
	SearchTurns(ctx context.Context, searchTerms []string, limit int) ([]*models.TurnRecord, error)
}

type TurnHandler struct {
	history TurnHistory
	logger  zerolog.Logger
}

func NewTurnHandler(history TurnHistory, logger zerolog.Logger) *TurnHandler {
	return &TurnHandler{history: history, logger: logger}
}

func (h *TurnHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/turns", h.ListTurns).Methods("GET")
	router.HandleFunc("/turns/{id}", h.GetTurn).Methods("GET")
}

// ListTurns serves GET /turns?limit=N&q=term,term.
func (h *TurnHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErrorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	terms := lo.Compact(lo.Map(strings.Split(r.URL.Query().Get("q"), ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))

	var (
		turns []*models.TurnRecord
		err   error
	)
	if len(terms) > 0 {
		turns, err = h.history.SearchTurns(r.Context(), terms, limit)
	} else {
		turns, err = h.history.ListTurns(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list turns")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve turns")
		return
	}

	if turns == nil {
		turns = []*models.TurnRecord{}
	}
	writeJSONResponse(w, http.StatusOK, turns)
}

func (h *TurnHandler) GetTurn(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid turn ID")
		return
	}

	turn, err := h.history.GetTurnByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrTurnNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "Turn not found")
			return
		}
		h.logger.Error().Err(err).Int("turn_id", id).Msg("Failed to get turn")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve turn")
		return
	}

	writeJSONResponse(w, http.StatusOK, turn)
}
