package models

// Query text length bounds enforced on every request.
const (
	MinQueryLength = 3
	MaxQueryLength = 500
)

// AgentRequest is one user turn entering the execution pipeline.
type AgentRequest struct {
	UserID        string `json:"-"`
	Query         string `json:"query"`
	DBURL         string `json:"dbUrl,omitempty"`
	DBType        string `json:"dbType,omitempty"`
	DryRun        bool   `json:"dryRun,omitempty"`
	RefreshSchema bool   `json:"refreshSchema,omitempty"`
	Insight       bool   `json:"insight,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
}

// AgentResponse is the shaped reply for one turn. Minimal mode carries
// only Success, Data and Message; insight (verbose) mode fills the rest.
type AgentResponse struct {
	Success         bool            `json:"success"`
	Data            any             `json:"data"`
	Message         string          `json:"message"`
	Query           string          `json:"query,omitempty"`
	QueryID         string          `json:"queryId,omitempty"`
	Plan            *Plan           `json:"plan,omitempty"`
	Trace           []StepResult    `json:"trace,omitempty"`
	ExecutedQueries []ExecutedQuery `json:"executedQueries,omitempty"`
	MemoryInsights  *MemoryInsights `json:"memoryInsights,omitempty"`
	Suggestions     []string        `json:"suggestions,omitempty"`
	ExecutionMillis int64           `json:"executionMillis,omitempty"`
}

// FeedbackRequest attaches a thumbs up/down to a past turn.
type FeedbackRequest struct {
	QueryID  string `json:"queryId"`
	Feedback string `json:"feedback"`
}

// StatusResponse describes what the engine can do, returned by the status
// endpoint and the MCP capabilities tool.
type StatusResponse struct {
	Version      string   `json:"version"`
	Databases    []string `json:"databases"`
	Capabilities []string `json:"capabilities"`
}
