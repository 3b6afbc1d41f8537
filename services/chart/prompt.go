package chart

import (
	"fmt"
	"regexp"
	"strings"
)

const chartPromptTemplate = `Given the following SQL query result as a JSON-serializable dict:
%s

Write a self-contained Python snippet that: %s

Rules:
- Data is already in a pandas DataFrame named ` + "`df`" + `. Do NOT recreate it manually.
- Use plotly.express (px) or plotly.graph_objects (go), we want interactive diagrams. Assign the chart to a variable named ` + "`fig`" + `.
- Avoid fig.show() and do not save or write any files.
- Allowed libraries: pandas, plotly, matplotlib.
- Style: transparent background, white font.
- ONLY return the code.`

const fixPromptTemplate = "Your code failed with error: %s. Fix it. Code was: %s"

func buildChartPrompt(resultJSON, instructions string) string {
	return fmt.Sprintf(chartPromptTemplate, resultJSON, instructions)
}

func buildFixPrompt(errMsg, code string) string {
	return fmt.Sprintf(fixPromptTemplate, errMsg, code)
}

var fencedBlock = regexp.MustCompile("(?s)```[ \t]*(?:python3|python|py)?[ \t]*\n?(.*?)```")

// stripCodeFences returns the code inside the first Markdown fence, or the
// reply with stray fence markers removed.
func stripCodeFences(reply string) string {
	if m := fencedBlock.FindStringSubmatch(reply); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	code := strings.ReplaceAll(reply, "```python", "")
	code = strings.ReplaceAll(code, "```", "")
	return strings.TrimSpace(code)
}
