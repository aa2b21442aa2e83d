package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StepKind tags a plan step with the tool that executes it. The tool set is
// fixed; plans referencing any other tool are rejected at parse time.
type StepKind string

const (
	StepDBQuery           StepKind = "dbQuery"
	StepComputeStats      StepKind = "computeStats"
	StepSecondaryAnalysis StepKind = "secondaryAnalysis"
)

// ValidStepKinds contains the complete tool set.
var ValidStepKinds = []StepKind{StepDBQuery, StepComputeStats, StepSecondaryAnalysis}

// IsValidStepKind checks whether the given tool tag is recognized.
func IsValidStepKind(k StepKind) bool {
	for _, v := range ValidStepKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Stats operation names usable in computeStats steps.
const (
	StatsCount    = "count"
	StatsTopK     = "topK"
	StatsMean     = "mean"
	StatsMin      = "min"
	StatsMax      = "max"
	StatsSum      = "sum"
	StatsDistinct = "distinct"
)

// StatsOp is one in-process statistic computed over a prior step's rows.
// The wire form is a compact string: "count", "mean:price", "topK:city:5".
type StatsOp struct {
	Name  string
	Field string
	K     int
}

// ParseStatsOp parses the compact op grammar.
func ParseStatsOp(s string) (StatsOp, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	switch parts[0] {
	case StatsCount:
		if len(parts) != 1 {
			return StatsOp{}, fmt.Errorf("count takes no arguments: %q", s)
		}
		return StatsOp{Name: StatsCount}, nil
	case StatsTopK:
		if len(parts) != 3 {
			return StatsOp{}, fmt.Errorf("topK needs field and k: %q", s)
		}
		k, err := strconv.Atoi(parts[2])
		if err != nil || k < 1 {
			return StatsOp{}, fmt.Errorf("topK k must be a positive integer: %q", s)
		}
		return StatsOp{Name: StatsTopK, Field: parts[1], K: k}, nil
	case StatsMean, StatsMin, StatsMax, StatsSum, StatsDistinct:
		if len(parts) != 2 || parts[1] == "" {
			return StatsOp{}, fmt.Errorf("%s needs a field: %q", parts[0], s)
		}
		return StatsOp{Name: parts[0], Field: parts[1]}, nil
	default:
		return StatsOp{}, fmt.Errorf("unknown stats op %q", s)
	}
}

// String renders the op back to its compact wire form.
func (o StatsOp) String() string {
	switch o.Name {
	case StatsCount:
		return StatsCount
	case StatsTopK:
		return fmt.Sprintf("%s:%s:%d", StatsTopK, o.Field, o.K)
	default:
		return o.Name + ":" + o.Field
	}
}

// MarshalJSON writes the compact string form.
func (o StatsOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON accepts the compact string form.
func (o *StatsOp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseStatsOp(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// PlanStep is one unit of work in an agent plan. Exactly one of the
// per-tool field groups is meaningful depending on Kind.
type PlanStep struct {
	Kind StepKind `json:"tool"`

	// dbQuery
	SubQuery string `json:"subQuery,omitempty"`

	// computeStats
	OnStep int       `json:"onStep,omitempty"`
	Ops    []StatsOp `json:"ops,omitempty"`

	// secondaryAnalysis
	OnSteps      []int  `json:"onSteps,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Validate checks the step's tool tag and required fields.
func (s *PlanStep) Validate(index int) error {
	if !IsValidStepKind(s.Kind) {
		return fmt.Errorf("step %d: unknown tool %q", index, s.Kind)
	}
	switch s.Kind {
	case StepDBQuery:
		if strings.TrimSpace(s.SubQuery) == "" {
			return fmt.Errorf("step %d: dbQuery requires subQuery", index)
		}
	case StepComputeStats:
		if len(s.Ops) == 0 {
			return fmt.Errorf("step %d: computeStats requires ops", index)
		}
		// onStep references an earlier step by zero-based index
		if s.OnStep < 0 || s.OnStep >= index {
			return fmt.Errorf("step %d: onStep %d must reference an earlier step", index, s.OnStep)
		}
	case StepSecondaryAnalysis:
		if strings.TrimSpace(s.Instructions) == "" {
			return fmt.Errorf("step %d: secondaryAnalysis requires instructions", index)
		}
		for _, ref := range s.OnSteps {
			if ref < 0 || ref >= index {
				return fmt.Errorf("step %d: onSteps reference %d must point at an earlier step", index, ref)
			}
		}
	}
	return nil
}

// Plan is the ordered step list produced by the planner. A zero-step plan
// with Conversational set answers without touching any database.
type Plan struct {
	Steps          []PlanStep `json:"steps"`
	Conversational bool       `json:"-"`
	Reply          string     `json:"-"`
}

// Validate checks every step. An empty non-conversational plan is invalid.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 && !p.Conversational {
		return fmt.Errorf("plan has no steps")
	}
	for i := range p.Steps {
		if err := p.Steps[i].Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// StepResult is the explicit outcome of one executed plan step. Failed
// steps carry a taxonomy-coded reason in Error; later steps still run.
type StepResult struct {
	Index    int              `json:"step"`
	Kind     StepKind         `json:"tool"`
	OK       bool             `json:"ok"`
	Output   any              `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
	Preview  []map[string]any `json:"preview,omitempty"`
	RowCount int              `json:"rowCount,omitempty"`
	Millis   int64            `json:"millis,omitempty"`
}
