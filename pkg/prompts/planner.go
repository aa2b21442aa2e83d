// Package prompts builds the LLM prompts for planning, query synthesis and
// response summaries. Builders are pure: same input, same prompt.
package prompts

import (
	"fmt"
	"strings"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// PlannerSystem is the system message for plan generation. The contract is
// strict JSON; anything else fails parsing and falls back to heuristics.
const PlannerSystem = `You are a database query planner. You respond with a single JSON object and nothing else: no prose, no markdown fences, no explanations. Boolean literals are lowercase true/false.`

// PlannerInput carries everything the planner prompt needs for one turn.
type PlannerInput struct {
	Query             string
	SchemaJSON        string
	Kind              models.DatabaseKind
	Capabilities      []string
	KeywordCandidates []string
	Insights          *models.MemoryInsights
	RecentQueries     []string
}

// BuildPlannerPrompt creates the plan-generation prompt: the user question,
// the database schema, capability and keyword hints, and the exact JSON
// output contract.
func BuildPlannerPrompt(in PlannerInput) string {
	var prompt strings.Builder

	prompt.WriteString("# Plan a database answer\n\n")
	prompt.WriteString(fmt.Sprintf("User question: %q\n", in.Query))
	prompt.WriteString(fmt.Sprintf("Database kind: %s\n\n", in.Kind))

	prompt.WriteString("## Schema\n\n")
	prompt.WriteString(in.SchemaJSON)
	prompt.WriteString("\n\n")

	if len(in.Capabilities) > 0 {
		prompt.WriteString("## What this database can answer\n\n")
		prompt.WriteString(strings.Join(in.Capabilities, ", "))
		prompt.WriteString("\n\n")
	}

	if len(in.KeywordCandidates) > 0 {
		prompt.WriteString("## Likely relevant tables or collections\n\n")
		prompt.WriteString(strings.Join(in.KeywordCandidates, ", "))
		prompt.WriteString("\n\n")
	}

	if in.Insights != nil {
		prompt.WriteString("## About this user\n\n")
		prompt.WriteString(fmt.Sprintf("Skill level: %s. Similar past queries: %d.\n",
			in.Insights.SkillLevel, in.Insights.SimilarQueries))
		if len(in.Insights.FrequentCollections) > 0 {
			prompt.WriteString(fmt.Sprintf("Frequently queried: %s.\n",
				strings.Join(in.Insights.FrequentCollections, ", ")))
		}
		prompt.WriteString("\n")
	}

	if len(in.RecentQueries) > 0 {
		prompt.WriteString("## Recent queries in this session\n\n")
		for _, q := range in.RecentQueries {
			prompt.WriteString("- ")
			prompt.WriteString(q)
			prompt.WriteString("\n")
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString(`## Tools

- dbQuery: runs one database query. Fields: {"tool":"dbQuery","subQuery":"<natural language description of the single query>"}
- computeStats: computes statistics over a previous step's rows in memory. Fields: {"tool":"computeStats","onStep":<zero-based index of an earlier step>,"ops":["count","mean:<field>","min:<field>","max:<field>","sum:<field>","distinct:<field>","topK:<field>:<k>"]}
- secondaryAnalysis: interprets previous results in natural language. Fields: {"tool":"secondaryAnalysis","onSteps":[<indices>],"instructions":"<what to analyze>"}

## Output

Respond with exactly this JSON shape, nothing else:
{"steps":[{"tool":"dbQuery","subQuery":"..."}]}

Rules:
- Most questions need a single dbQuery step.
- Only reference earlier steps in onStep/onSteps.
- Never invent tools beyond dbQuery, computeStats, secondaryAnalysis.
- Never include explanations or markdown.`)

	return prompt.String()
}
