// Package safety validates and rewrites generated queries before they touch
// a database. Every ExecutedQuery passes the gate first; a violation fails
// the step with a precise rule code and never reaches the driver.
package safety

import (
	"time"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// Gate enforces the query safety rules and applies row caps.
type Gate struct {
	defaultRowCap int
	logger        *zap.Logger

	// now is swappable for deterministic sentinel coercion in tests.
	now func() time.Time
}

// NewGate creates a safety gate with the configured default row cap.
func NewGate(defaultRowCap int, logger *zap.Logger) *Gate {
	return &Gate{
		defaultRowCap: defaultRowCap,
		logger:        logger.Named("safety"),
		now:           time.Now,
	}
}

// Check validates the query in place: placeholder normalization, row cap
// injection and sentinel coercion all mutate q. A non-nil return is always a
// SafetyRejected or BadInput error and means q must not be executed.
func (g *Gate) Check(q *models.ExecutedQuery) error {
	var err error
	switch q.Kind {
	case models.KindMongo:
		err = g.checkDocument(q)
	case models.KindPostgres, models.KindMySQL:
		err = g.checkRelational(q)
	default:
		err = apperrors.Newf(apperrors.KindUnsupportedEndpoint, "no safety rules for kind %q", q.Kind)
	}

	if err != nil {
		g.logger.Warn("query rejected",
			zap.String("kind", string(q.Kind)),
			zap.String("rule", apperrors.RuleOf(err)),
			zap.Error(err))
	}
	return err
}

// RowCap returns the effective row limit: the smaller of the requested
// limit and the configured default. A non-positive request means the
// default applies unchanged.
func (g *Gate) RowCap(requested int) int {
	if requested <= 0 || requested > g.defaultRowCap {
		return g.defaultRowCap
	}
	return requested
}
