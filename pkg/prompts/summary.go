package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SummarySystem is the system message for final-answer composition.
const SummarySystem = `You summarize database query results for the person who asked. Answer their question directly in one to three sentences. Plain text only, no markdown, no JSON.`

// BuildSummaryPrompt creates the prompt that turns query results into the
// response message. Rows are pre-trimmed by the caller.
func BuildSummaryPrompt(question string, rows []map[string]any, rowCount int) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Question: %q\n\n", question))
	prompt.WriteString(fmt.Sprintf("The query matched %d record(s).\n", rowCount))

	if len(rows) > 0 {
		prompt.WriteString("Sample of the results:\n")
		writeRowsJSON(&prompt, rows)
	}

	prompt.WriteString("\nAnswer the question using only these results.")
	return prompt.String()
}

// AnalysisSystem is the system message for secondaryAnalysis steps.
const AnalysisSystem = `You analyze database query results. Follow the given instructions precisely. Plain text only, no markdown, no JSON.`

// BuildAnalysisPrompt creates the prompt for a secondaryAnalysis step over
// the referenced steps' rows.
func BuildAnalysisPrompt(instructions string, stepRows map[int][]map[string]any) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Instructions: %s\n\n", instructions))
	for step, rows := range stepRows {
		prompt.WriteString(fmt.Sprintf("## Results of step %d\n", step))
		writeRowsJSON(&prompt, rows)
		prompt.WriteString("\n")
	}

	return prompt.String()
}

func writeRowsJSON(prompt *strings.Builder, rows []map[string]any) {
	data, err := json.Marshal(rows)
	if err != nil {
		// Rows came out of the executor as JSON-clean maps; a marshal
		// failure means a programming error upstream, not bad user data.
		prompt.WriteString("[unserializable rows]\n")
		return
	}
	prompt.Write(data)
	prompt.WriteString("\n")
}
