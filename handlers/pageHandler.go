package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"hdbinsights/models"
	"hdbinsights/services/chart"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const defaultQuestion = "How has average resale price changed over the years?"

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"formatInsight": formatInsight,
	"formatCell":    formatCell,
}).ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Question string
	Output   *models.TurnOutput
	Figure   *chart.Figure
	Error    string
}

// PageHandler renders the question form and, after a submit, the insight,
// chart and data table of the turn.
type PageHandler struct {
	turns  turnRunner
	store  *chart.ArtifactStore
	logger zerolog.Logger
}

func NewPageHandler(asker TurnAsker, recorder TurnRecorder, store *chart.ArtifactStore, logger zerolog.Logger) *PageHandler {
	return &PageHandler{
		turns:  turnRunner{asker: asker, recorder: recorder, logger: logger},
		store:  store,
		logger: logger,
	}
}

func (h *PageHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Index).Methods("GET")
	router.HandleFunc("/", h.Submit).Methods("POST")
}

func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, pageData{Question: defaultQuestion})
}

func (h *PageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	data := pageData{Question: r.FormValue("question")}

	question, err := validateQuestion(data.Question)
	if err != nil {
		data.Error = err.Error()
		h.render(w, http.StatusBadRequest, data)
		return
	}

	turn, err := h.turns.run(r.Context(), question)
	if err != nil {
		h.logger.Error().Err(err).Msg("Agent turn failed")
		data.Error = "The assistant could not answer this question. Please try again."
		h.render(w, http.StatusInternalServerError, data)
		return
	}

	data.Output = &turn.Output
	if turn.Output.ChartID != "" {
		fig, err := h.store.LoadFigure(turn.Output.ChartID)
		if err != nil {
			h.logger.Warn().Err(err).Str("chart_id", turn.Output.ChartID).Msg("Failed to reload chart")
		} else {
			data.Figure = fig
		}
	}

	h.render(w, http.StatusOK, data)
}

func (h *PageHandler) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render page")
	}
}

// formatInsight escapes model text for HTML, keeps dollar amounts from being
// read as math delimiters, and turns both real and escaped newlines into
// line breaks.
func formatInsight(insight string) template.HTML {
	escaped := template.HTMLEscapeString(insight)
	escaped = strings.ReplaceAll(escaped, "$", "&#36;")
	escaped = strings.ReplaceAll(escaped, `\n`, "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return template.HTML(escaped)
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
