package agent

import (
	"fmt"
	"strings"

	"hdbinsights/models"
)

const systemPromptTemplate = `You are an agent that answers questions about HDB resale prices.

This is the schema to the resale db named ` + "`%[1]s`" + `:
%[2]s

Flow:
1. If the user's query is just about the schema, answer directly.
2. Otherwise, generate a SQL query and call ` + "`" + SQLToolName + "`" + `.
3. If a chart would make the answer clearer (trends, comparisons, distributions), call ` + "`" + VisualisationToolName + "`" + ` with instructions describing the chart.
4. If the answer is a single value, skip the visualisation.
5. Give insights based on the data and (if created) the visualisation.

Notes:
- DO NOT redisplay tables or JSON filenames in markdown.
- JUST give insights.
- Remember to always include the tool name when calling a tool!

Current year: %[3]d.`

const examplesHeader = `

Examples of questions and SQL that answered them well:`

func BuildSystemPrompt(table, schema string, currentYear int, examples []models.SQLExample) string {
	if table == "" {
		table = DefaultTable
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(systemPromptTemplate, table, schema, currentYear))

	if len(examples) > 0 {
		sb.WriteString(examplesHeader)
		for _, ex := range examples {
			sb.WriteString(fmt.Sprintf("\n\nQuestion: %s\nSQL: %s", ex.Question, strings.TrimSpace(ex.SQL)))
		}
	}

	return sb.String()
}
