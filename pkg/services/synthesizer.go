package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/jsonutil"
	"github.com/datapilot-ai/datapilot-engine/pkg/llm"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/prompts"
)

// Intent keywords for the heuristic synthesizer.
var (
	countIntent  = regexp.MustCompile(`(?i)\b(count|how many|number of)\b`)
	latestIntent = regexp.MustCompile(`(?i)\b(latest|recent|newest|last|first)\b`)
	topIntent    = regexp.MustCompile(`(?i)\b(top|first)\s+(\d+)\b`)
)

// dateFieldNames are tried in order when the heuristic needs a recency sort.
var dateFieldNames = []string{"createdAt", "created_at", "createdat", "timestamp", "date", "updatedAt", "updated_at"}

// QuerySynthesizer turns one dbQuery step's natural-language sub-query into
// an ExecutedQuery, via the oracle when available and deterministic
// heuristics otherwise.
type QuerySynthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (*models.ExecutedQuery, error)
}

// SynthesisInput carries the context for synthesizing one query.
type SynthesisInput struct {
	SubQuery   string
	SchemaJSON string
	Kind       models.DatabaseKind
	RowCap     int
	// Candidates are the keyword matcher's table/collection suggestions,
	// used by the heuristic to pick a target.
	Candidates []string
}

type querySynthesizer struct {
	oracle llm.Oracle // nil means heuristics only
	logger *zap.Logger
}

// NewQuerySynthesizer creates a synthesizer. oracle may be nil.
func NewQuerySynthesizer(oracle llm.Oracle, logger *zap.Logger) QuerySynthesizer {
	return &querySynthesizer{
		oracle: oracle,
		logger: logger.Named("synthesizer"),
	}
}

var _ QuerySynthesizer = (*querySynthesizer)(nil)

func (s *querySynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (*models.ExecutedQuery, error) {
	if s.oracle != nil {
		q, err := s.synthesizeWithOracle(ctx, in)
		if err == nil {
			return q, nil
		}
		s.logger.Warn("query synthesis failed, falling back to heuristics",
			zap.String("kind", string(in.Kind)),
			zap.Error(err))
	}
	return HeuristicQuery(in)
}

func (s *querySynthesizer) synthesizeWithOracle(ctx context.Context, in SynthesisInput) (*models.ExecutedQuery, error) {
	prompt := prompts.BuildSynthesisPrompt(prompts.SynthesisInput{
		SubQuery:   in.SubQuery,
		SchemaJSON: in.SchemaJSON,
		Kind:       in.Kind,
		RowCap:     in.RowCap,
	})

	result, err := s.oracle.GenerateResponse(ctx, prompt, prompts.SynthesisSystem, -1)
	if err != nil {
		return nil, err
	}

	q, err := jsonutil.ParseModelJSON[models.ExecutedQuery](result.Content)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPlanParseFailed, "query output was not valid JSON", err)
	}
	q.Kind = in.Kind

	if in.Kind == models.KindMongo {
		if q.Operation == "" || q.Collection == "" {
			return nil, apperrors.New(apperrors.KindPlanParseFailed, "query output missing operation or collection")
		}
	} else if strings.TrimSpace(q.SQL) == "" {
		return nil, apperrors.New(apperrors.KindPlanParseFailed, "query output missing sql")
	}
	return &q, nil
}

// HeuristicQuery builds a query from intent keywords alone: count intents
// become counts, recency intents sort by a date-ish field, "top N" bounds
// the limit. The target is the first keyword candidate, falling back to the
// first schema entity.
func HeuristicQuery(in SynthesisInput) (*models.ExecutedQuery, error) {
	target, dateField := heuristicTarget(in)
	if target == "" {
		return nil, apperrors.New(apperrors.KindPlanParseFailed,
			"could not determine a target table or collection for the request")
	}

	limit := in.RowCap
	if m := topIntent.FindStringSubmatch(in.SubQuery); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
			limit = n
		}
	}

	if in.Kind == models.KindMongo {
		return heuristicDocumentQuery(in.SubQuery, target, dateField, limit), nil
	}
	return heuristicRelationalQuery(in, target, dateField, limit), nil
}

func heuristicDocumentQuery(subQuery, collection, dateField string, limit int) *models.ExecutedQuery {
	if countIntent.MatchString(subQuery) {
		return &models.ExecutedQuery{
			Kind:        models.KindMongo,
			Operation:   models.OpCount,
			Collection:  collection,
			Filter:      map[string]any{},
			Description: fmt.Sprintf("Count documents in %s", collection),
		}
	}

	q := &models.ExecutedQuery{
		Kind:        models.KindMongo,
		Operation:   models.OpFind,
		Collection:  collection,
		Filter:      map[string]any{},
		Limit:       limit,
		Description: fmt.Sprintf("List documents from %s", collection),
	}
	if latestIntent.MatchString(subQuery) && dateField != "" {
		q.Sort = map[string]any{dateField: -1}
		q.Description = fmt.Sprintf("List the most recent documents from %s", collection)
	}
	return q
}

func heuristicRelationalQuery(in SynthesisInput, table, dateField string, limit int) *models.ExecutedQuery {
	if countIntent.MatchString(in.SubQuery) {
		return &models.ExecutedQuery{
			Kind:        in.Kind,
			SQL:         fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", table),
			Description: fmt.Sprintf("Count rows in %s", table),
		}
	}

	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT * FROM %s", table)
	description := fmt.Sprintf("List rows from %s", table)
	if latestIntent.MatchString(in.SubQuery) && dateField != "" {
		fmt.Fprintf(&sql, " ORDER BY %s DESC", dateField)
		description = fmt.Sprintf("List the most recent rows from %s", table)
	}
	fmt.Fprintf(&sql, " LIMIT %d", limit)

	return &models.ExecutedQuery{
		Kind:        in.Kind,
		SQL:         sql.String(),
		Description: description,
	}
}

// heuristicTarget picks the entity the query should run against and a
// date-ish field usable for recency sorts.
func heuristicTarget(in SynthesisInput) (target, dateField string) {
	entities, err := parseSchemaEntities(in.Kind, in.SchemaJSON)
	if err != nil {
		entities = nil
	}

	if len(in.Candidates) > 0 {
		target = in.Candidates[0]
	} else if len(entities) > 0 {
		target = entities[0].Name
	}
	if target == "" {
		return "", ""
	}

	for _, e := range entities {
		if e.Name != target {
			continue
		}
		for _, want := range dateFieldNames {
			for _, field := range e.Fields {
				if strings.EqualFold(field, want) {
					return target, field
				}
			}
		}
	}
	return target, ""
}
