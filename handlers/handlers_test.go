package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"hdbinsights/db"
	"hdbinsights/models"
	"hdbinsights/services/agent"
	"hdbinsights/services/chart"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	turn      *agent.Turn
	err       error
	questions []string
}

func (f *fakeAsker) Ask(ctx context.Context, question string) (*agent.Turn, error) {
	f.questions = append(f.questions, question)
	return f.turn, f.err
}

type fakeRecorder struct {
	recorded []string
	err      error
}

func (f *fakeRecorder) RecordTurn(ctx context.Context, question string, turn *agent.Turn, duration time.Duration) (*models.TurnRecord, error) {
	f.recorded = append(f.recorded, question)
	if f.err != nil {
		return nil, f.err
	}
	return &models.TurnRecord{ID: len(f.recorded), Question: question}, nil
}

type fakeHistory struct {
	turns       []*models.TurnRecord
	searched    []string
	listedLimit int
}

func (f *fakeHistory) GetTurnByID(ctx context.Context, id int) (*models.TurnRecord, error) {
	for _, turn := range f.turns {
		if turn.ID == id {
			return turn, nil
		}
	}
	return nil, fmt.Errorf("turn with id %d: %w", id, db.ErrTurnNotFound)
}

func (f *fakeHistory) ListTurns(ctx context.Context, limit int) ([]*models.TurnRecord, error) {
	f.listedLimit = limit
	return f.turns, nil
}

func (f *fakeHistory) SearchTurns(ctx context.Context, searchTerms []string, limit int) ([]*models.TurnRecord, error) {
	f.searched = searchTerms
	return f.turns[:1], nil
}

func countTurn() *agent.Turn {
	return &agent.Turn{
		Output: models.TurnOutput{
			Insight:  "There are 3 resale transactions.",
			ResultDF: &models.QueryResult{Columns: []string{"count_star()"}, Rows: [][]any{{int64(3)}}},
		},
		RoundTrips: 2,
		SQLQueries: []string{"SELECT COUNT(*) FROM resale_data_2017_to_2025"},
	}
}

func serve(t *testing.T, register func(*mux.Router), req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := mux.NewRouter()
	register(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAgentHandlerAsk(t *testing.T) {
	asker := &fakeAsker{turn: countTurn()}
	recorder := &fakeRecorder{}
	handler := NewAgentHandler(asker, recorder, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/agent/ask", strings.NewReader(`{"question": "  What is the total number of rows?  "}`))
	rec := serve(t, handler.RegisterRoutes, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "There are 3 resale transactions.", body["insight"])
	assert.Nil(t, body["visualisation"])
	assert.NotNil(t, body["result_df"])

	assert.Equal(t, []string{"What is the total number of rows?"}, asker.questions)
	assert.Equal(t, []string{"What is the total number of rows?"}, recorder.recorded)
}

func TestAgentHandlerIgnoresRecorderFailure(t *testing.T) {
	handler := NewAgentHandler(&fakeAsker{turn: countTurn()}, &fakeRecorder{err: errors.New("db down")}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/agent/ask", strings.NewReader(`{"question": "count"}`))
	rec := serve(t, handler.RegisterRoutes, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func timedOutTurn() *agent.Turn {
	turn := countTurn()
	turn.Output.Insight = "I ran out of time before finishing this analysis."
	turn.TimedOut = true
	return turn
}

func TestAgentHandlerTimedOutTurn(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := NewAgentHandler(&fakeAsker{turn: timedOutTurn()}, recorder, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/agent/ask", strings.NewReader(`{"question": "slow"}`))
	rec := serve(t, handler.RegisterRoutes, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "I ran out of time before finishing this analysis.", body["insight"])
	assert.NotNil(t, body["result_df"])
	assert.Equal(t, []string{"slow"}, recorder.recorded)
}

func TestAgentHandlerErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		askErr     error
		wantStatus int
		wantError  string
	}{
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest, wantError: "Invalid JSON payload"},
		{name: "empty question", body: `{"question": "   "}`, wantStatus: http.StatusBadRequest, wantError: "question is required"},
		{name: "question too long", body: `{"question": "` + strings.Repeat("a", maxQuestionLength+1) + `"}`, wantStatus: http.StatusBadRequest, wantError: "at most"},
		{name: "turn cancelled", body: `{"question": "q"}`, askErr: fmt.Errorf("agent turn aborted: %w", context.Canceled), wantStatus: http.StatusInternalServerError, wantError: "agent turn aborted"},
		{name: "model failure", body: `{"question": "q"}`, askErr: errors.New("failed to call model: 401"), wantStatus: http.StatusInternalServerError, wantError: "failed to call model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asker := &fakeAsker{err: tt.askErr}
			handler := NewAgentHandler(asker, nil, zerolog.Nop())

			req := httptest.NewRequest(http.MethodPost, "/agent/ask", strings.NewReader(tt.body))
			rec := serve(t, handler.RegisterRoutes, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.wantError)
		})
	}
}

func saveChart(t *testing.T, store *chart.ArtifactStore) models.ChartOutcome {
	t.Helper()
	outcome, err := store.Save(&chart.Render{
		FigureJSON: []byte(`{"data":[{"type":"bar","x":["A","B"],"y":[1,2]}],"layout":{"title":{"text":"Sales"}}}`),
		PNG:        []byte("\x89PNG fake"),
	})
	require.NoError(t, err)
	return outcome
}

func TestVisualisationHandler(t *testing.T) {
	store := chart.NewArtifactStore(t.TempDir())
	outcome := saveChart(t, store)
	handler := NewVisualisationHandler(store, zerolog.Nop())

	t.Run("figure", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/visualisations/"+outcome.UUID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		fig, err := chart.ParseFigure(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, []string{"bar"}, fig.TraceTypes())
	})

	t.Run("image", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/visualisations/"+outcome.UUID+"/image", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "\x89PNG fake", rec.Body.String())
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/visualisations/1b4e28ba-2fa1-11d2-883f-0016d3cca427", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/visualisations/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTurnHandler(t *testing.T) {
	history := &fakeHistory{turns: []*models.TurnRecord{
		{ID: 2, Question: "Prices in Tampines"},
		{ID: 1, Question: "Count of sales"},
	}}
	handler := NewTurnHandler(history, zerolog.Nop())

	t.Run("list", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/turns?limit=5", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var turns []models.TurnRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turns))
		assert.Len(t, turns, 2)
		assert.Equal(t, 5, history.listedLimit)
	})

	t.Run("search", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/turns?q=tampines,+,price", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"tampines", "price"}, history.searched)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/turns?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/turns/1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Count of sales")
	})

	t.Run("not found", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/turns/99", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/turns/abc", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func postForm(question string) *http.Request {
	form := url.Values{"question": {question}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestPageHandlerIndex(t *testing.T) {
	handler := NewPageHandler(&fakeAsker{}, nil, chart.NewArtifactStore(t.TempDir()), zerolog.Nop())

	rec := serve(t, handler.RegisterRoutes, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "HDB Resale Prices Demo")
	assert.Contains(t, rec.Body.String(), defaultQuestion)
	assert.NotContains(t, rec.Body.String(), "Insights")
}

func TestPageHandlerRendersTurn(t *testing.T) {
	store := chart.NewArtifactStore(t.TempDir())
	outcome := saveChart(t, store)

	turn := countTurn()
	turn.Output.Insight = `Average price rose to $520,000.\nSee the chart <below>.`
	turn.Output.Visualisation = &outcome.FigPath
	turn.Output.ChartID = outcome.UUID

	recorder := &fakeRecorder{}
	handler := NewPageHandler(&fakeAsker{turn: turn}, recorder, store, zerolog.Nop())

	rec := serve(t, handler.RegisterRoutes, postForm("How have prices changed?"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Average price rose to &#36;520,000.<br>See the chart &lt;below&gt;.")
	assert.Contains(t, body, "Visualisation")
	assert.Contains(t, body, `"type":"bar"`)
	assert.Contains(t, body, "<th>count_star()</th>")
	assert.Contains(t, body, "<td>3</td>")
	assert.Equal(t, []string{"How have prices changed?"}, recorder.recorded)
}

func TestPageHandlerErrors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		asker := &fakeAsker{}
		handler := NewPageHandler(asker, nil, chart.NewArtifactStore(t.TempDir()), zerolog.Nop())

		rec := serve(t, handler.RegisterRoutes, postForm("  "))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "question is required")
		assert.Empty(t, asker.questions)
	})

	t.Run("timed out turn", func(t *testing.T) {
		handler := NewPageHandler(&fakeAsker{turn: timedOutTurn()}, nil, chart.NewArtifactStore(t.TempDir()), zerolog.Nop())

		rec := serve(t, handler.RegisterRoutes, postForm("q"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "I ran out of time before finishing this analysis.")
		assert.Contains(t, rec.Body.String(), "<td>3</td>")
	})

	t.Run("model failure", func(t *testing.T) {
		handler := NewPageHandler(&fakeAsker{err: errors.New("failed to call model: 401")}, nil, chart.NewArtifactStore(t.TempDir()), zerolog.Nop())

		rec := serve(t, handler.RegisterRoutes, postForm("q"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "could not answer this question")
	})

	t.Run("missing chart file", func(t *testing.T) {
		turn := countTurn()
		turn.Output.ChartID = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"
		handler := NewPageHandler(&fakeAsker{turn: turn}, nil, chart.NewArtifactStore(t.TempDir()), zerolog.Nop())

		rec := serve(t, handler.RegisterRoutes, postForm("q"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "Visualisation")
		assert.Contains(t, rec.Body.String(), "Data")
	})
}

func TestFormatInsight(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"costs $5", "costs &#36;5"},
		{`a\nb`, "a<br>b"},
		{"a\nb", "a<br>b"},
		{"<b>x</b>", "&lt;b&gt;x&lt;/b&gt;"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, string(formatInsight(tt.in)))
		})
	}
}
