package main

import (
	"bytes"
	"testing"

	"hdbinsights/models"

	"github.com/stretchr/testify/assert"
)

func TestPrintTurn(t *testing.T) {
	path := "visualisation_outputs/abc_fig.json"
	out := models.TurnOutput{
		Insight:       `Prices rose.\nTampines led.`,
		Visualisation: &path,
		ResultDF: &models.QueryResult{
			Columns: []string{"town", "avg_price"},
			Rows: [][]any{
				{"TAMPINES", 540000.5},
				{"BISHAN", nil},
				{"PUNGGOL", 510000.0},
			},
		},
	}

	var buf bytes.Buffer
	printTurn(&buf, out, 2)

	got := buf.String()
	assert.Contains(t, got, "Prices rose.\nTampines led.")
	assert.Contains(t, got, "Visualisation: visualisation_outputs/abc_fig.json")
	assert.Contains(t, got, "Data (3 rows):")
	assert.Contains(t, got, "TAMPINES")
	assert.Contains(t, got, "540000.5")
	assert.NotContains(t, got, "PUNGGOL")
	assert.Contains(t, got, "... 1 more rows")
}

func TestPrintTurnInsightOnly(t *testing.T) {
	var buf bytes.Buffer
	printTurn(&buf, models.TurnOutput{Insight: "Hello."}, 10)

	assert.Equal(t, "Insights:\nHello.\n", buf.String())
}
