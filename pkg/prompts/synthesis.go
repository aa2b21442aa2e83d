package prompts

import (
	"fmt"
	"strings"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// SynthesisSystem is the system message for query synthesis. Same strict
// JSON contract as the planner.
const SynthesisSystem = `You translate one natural-language request into one database query. You respond with a single JSON object and nothing else: no prose, no markdown fences, no explanations.`

// SynthesisInput carries the context for synthesizing one query.
type SynthesisInput struct {
	SubQuery   string
	SchemaJSON string
	Kind       models.DatabaseKind
	RowCap     int
}

// BuildSynthesisPrompt creates the query-synthesis prompt for a dbQuery
// step. The output contract differs by database family.
func BuildSynthesisPrompt(in SynthesisInput) string {
	var prompt strings.Builder

	prompt.WriteString("# Write one database query\n\n")
	prompt.WriteString(fmt.Sprintf("Request: %q\n", in.SubQuery))
	prompt.WriteString(fmt.Sprintf("Database kind: %s\n\n", in.Kind))

	prompt.WriteString("## Schema\n\n")
	prompt.WriteString(in.SchemaJSON)
	prompt.WriteString("\n\n")

	if in.Kind == models.KindMongo {
		writeDocumentContract(&prompt, in.RowCap)
	} else {
		writeRelationalContract(&prompt, in.Kind, in.RowCap)
	}

	return prompt.String()
}

func writeDocumentContract(prompt *strings.Builder, rowCap int) {
	prompt.WriteString(`## Output

Respond with exactly this JSON shape, nothing else:
{"operation":"find","collection":"...","filter":{},"projection":{},"sort":{},"limit":50,"description":"..."}

Rules:
- operation is one of find, findOne, count, aggregate, insertOne, updateOne, deleteOne.
- aggregate uses "pipeline":[...] instead of filter/sort/limit.
- insertOne uses "document":{...}; updateOne uses "filter" and "update".
- Never use $where, $function or $accumulator.
- updateOne and deleteOne require a specific filter.
- For relative dates use the sentinels "DATE_TODAY", "DATE_7_DAYS_AGO", "DATE_30_DAYS_AGO" as filter values.
`)
	fmt.Fprintf(prompt, "- Reads must set a limit; never exceed %d.\n", rowCap)
	prompt.WriteString("- description is one short sentence saying what the query does.")
}

func writeRelationalContract(prompt *strings.Builder, kind models.DatabaseKind, rowCap int) {
	placeholder := "?"
	if kind == models.KindPostgres {
		placeholder = "$1, $2, ..."
	}

	prompt.WriteString(`## Output

Respond with exactly this JSON shape, nothing else:
{"sql":"SELECT ...","parameters":[],"description":"..."}

Rules:
- Exactly one statement. No semicolons, no comments.
- Never use DROP, TRUNCATE or ALTER.
- UPDATE and DELETE must have a WHERE clause.
`)
	fmt.Fprintf(prompt, "- Use %s placeholders for every literal value.\n", placeholder)
	fmt.Fprintf(prompt, "- SELECT must have a LIMIT; never exceed %d.\n", rowCap)
	prompt.WriteString(`- For relative dates use the sentinels "DATE_TODAY", "DATE_7_DAYS_AGO", "DATE_30_DAYS_AGO" as parameter values.
- description is one short sentence saying what the query does.`)
}
