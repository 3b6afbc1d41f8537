package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"hdbinsights/models"
	"hdbinsights/services/agent"

	"github.com/rs/zerolog"
)

type TurnAsker interface {
	Ask(ctx context.Context, question string) (*agent.Turn, error)
}

type TurnRecorder interface {
	RecordTurn(ctx context.Context, question string, turn *agent.Turn, duration time.Duration) (*models.TurnRecord, error)
}

// turnRunner runs one agent turn and, when a recorder is configured, logs
// it without letting a logging failure reach the caller.
type turnRunner struct {
	asker    TurnAsker
	recorder TurnRecorder
	logger   zerolog.Logger
}

func (r turnRunner) run(ctx context.Context, question string) (*agent.Turn, error) {
	start := time.Now()
	turn, err := r.asker.Ask(ctx, question)
	if err != nil {
		return nil, err
	}

	if r.recorder != nil {
		if _, err := r.recorder.RecordTurn(context.WithoutCancel(ctx), question, turn, time.Since(start)); err != nil {
			r.logger.Warn().Err(err).Msg("Turn history not recorded")
		}
	}
	return turn, nil
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
