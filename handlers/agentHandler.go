package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"hdbinsights/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxQuestionLength = 1000

type AgentHandler struct {
	turns  turnRunner
	logger zerolog.Logger
}

// NewAgentHandler wires the ask endpoint. recorder may be nil when turn
// history is not configured.
func NewAgentHandler(asker TurnAsker, recorder TurnRecorder, logger zerolog.Logger) *AgentHandler {
	return &AgentHandler{
		turns:  turnRunner{asker: asker, recorder: recorder, logger: logger},
		logger: logger,
	}
}

func (h *AgentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/agent/ask", h.Ask).Methods("POST")
}

func (h *AgentHandler) Ask(w http.ResponseWriter, r *http.Request) {
	h.logger.Info().Msg("Received agent ask request")

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode ask request JSON")
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	question, err := validateQuestion(req.Question)
	if err != nil {
		h.logger.Error().Err(err).Msg("Invalid question")
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := h.turns.run(r.Context(), question)
	if err != nil {
		h.logger.Error().Err(err).Msg("Agent turn failed")
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info().
		Int("round_trips", turn.RoundTrips).
		Bool("timed_out", turn.TimedOut).
		Msg("Agent ask completed successfully")
	writeJSONResponse(w, http.StatusOK, turn.Output)
}

func validateQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question is required")
	}
	if len(question) > maxQuestionLength {
		return "", fmt.Errorf("question must be at most %d characters", maxQuestionLength)
	}
	return question, nil
}
