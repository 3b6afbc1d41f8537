package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hdbinsights/db"
	"hdbinsights/models"
	"hdbinsights/services/agent"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"
)

const (
	DefaultTurnListLimit = 50
	MaxTurnListLimit     = 200
)

type TurnService struct {
	repo   db.TurnRepository
	logger zerolog.Logger
}

func NewTurnService(repo db.TurnRepository, logger zerolog.Logger) *TurnService {
	return &TurnService{repo: repo, logger: logger.With().Str("component", "turns").Logger()}
}

// RecordTurn stores a summary of a finished turn. Callers treat failures as
// non-fatal; the user already has their answer.
func (s *TurnService) RecordTurn(ctx context.Context, question string, turn *agent.Turn, duration time.Duration) (*models.TurnRecord, error) {
	if turn == nil {
		return nil, fmt.Errorf("turn cannot be nil")
	}

	record := &models.TurnRecord{
		Question:   strings.TrimSpace(question),
		Insight:    turn.Output.Insight,
		SQLQueries: turn.SQLQueries,
		RoundTrips: turn.RoundTrips,
		DurationMs: duration.Milliseconds(),
	}
	if record.SQLQueries == nil {
		record.SQLQueries = []string{}
	}
	if turn.Output.ResultDF != nil {
		record.RowCount = turn.Output.ResultDF.RowCount()
	}
	if turn.Output.ChartID != "" {
		id := turn.Output.ChartID
		record.ChartID = &id
	}

	if err := s.repo.CreateTurn(ctx, record); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record turn")
		return nil, fmt.Errorf("failed to record turn: %w", err)
	}

	s.logger.Info().Int("turn_id", record.ID).Int("round_trips", record.RoundTrips).Msg("Recorded turn")
	return record, nil
}

func (s *TurnService) GetTurnByID(ctx context.Context, id int) (*models.TurnRecord, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid turn ID: %d", id)
	}

	turn, err := s.repo.GetTurnByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int("turn_id", id).Msg("Failed to get turn")
		return nil, err
	}
	return turn, nil
}

// ListTurns returns the most recent turns, newest first.
func (s *TurnService) ListTurns(ctx context.Context, limit int) ([]*models.TurnRecord, error) {
	turns, err := s.repo.ListTurns(ctx, clampLimit(limit))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list turns")
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	s.logger.Debug().Int("count", len(turns)).Msg("Listed turns")
	return turns, nil
}

// SearchTurns filters recent turns to those whose question or insight
// matches any of the search terms, tolerating small typos.
func (s *TurnService) SearchTurns(ctx context.Context, searchTerms []string, limit int) ([]*models.TurnRecord, error) {
	turns, err := s.ListTurns(ctx, MaxTurnListLimit)
	if err != nil {
		return nil, err
	}

	if len(searchTerms) == 0 {
		return truncateTurns(turns, clampLimit(limit)), nil
	}

	var matching []*models.TurnRecord
	for _, turn := range turns {
		if turnMatchesSearch(turn, searchTerms) {
			matching = append(matching, turn)
		}
	}

	s.logger.Debug().Int("terms", len(searchTerms)).Int("matches", len(matching)).Msg("Searched turns")
	return truncateTurns(matching, clampLimit(limit)), nil
}

func turnMatchesSearch(turn *models.TurnRecord, searchTerms []string) bool {
	text := turn.Question + " " + turn.Insight

	var words []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:()[]{}\"'$")
		if word != "" {
			words = append(words, word)
		}
	}

	for _, term := range searchTerms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if fuzzy.MatchFold(term, text) {
			return true
		}
		// one edit away from a whole word
		for _, word := range words {
			if len(term) > 3 && fuzzy.LevenshteinDistance(term, word) <= 1 {
				return true
			}
		}
	}

	return false
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTurnListLimit
	}
	return min(limit, MaxTurnListLimit)
}

func truncateTurns(turns []*models.TurnRecord, limit int) []*models.TurnRecord {
	if len(turns) > limit {
		return turns[:limit]
	}
	return turns
}
