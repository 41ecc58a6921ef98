package service

import (
	"context"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/server/metrics"
	"github.com/apimgr/memberkit/src/utils"
)

// ConstraintApplier adds the foreign keys once every table exists. It never
// fails the installation.
type ConstraintApplier struct {
	dialect     database.Dialect
	constraints []database.Constraint
	logger      *utils.Logger
}

// NewConstraintApplier creates an applier for database.Constraints
func NewConstraintApplier(dialect database.Dialect, logger *utils.Logger) *ConstraintApplier {
	return &ConstraintApplier{
		dialect:     dialect,
		constraints: database.Constraints,
		logger:      logger,
	}
}

// Apply executes each constraint in order and reports per-constraint outcomes
func (a *ConstraintApplier) Apply(ctx context.Context, q database.Execer) BatchResult {
	var result BatchResult

	for _, c := range a.constraints {
		outcome, err := a.applyOne(ctx, q, c)
		result.add(c.Name, outcome, err)
		metrics.RecordConstraint(string(outcome))
	}
	return result
}

func (a *ConstraintApplier) applyOne(ctx context.Context, q database.Execer, c database.Constraint) (Outcome, error) {
	stmt, ok := a.dialect.AddConstraintSQL(c)
	if !ok {
		a.logger.Debug("Constraint %s skipped: %s cannot add foreign keys to existing tables", c.Name, a.dialect.Name())
		return OutcomeSkipped, nil
	}

	_, err := database.ExecContext(ctx, q, database.TimeoutDDL, stmt)
	if err == nil {
		a.logger.Debug("Constraint %s applied", c.Name)
		return OutcomeApplied, nil
	}

	switch kind := database.Classify(err); {
	case kind.Benign():
		return OutcomeExists, nil
	case kind == database.KindReferenceViolation:
		// existing rows violate the key; the schema is still usable
		a.logger.Debug("Constraint %s not added: %v", c.Name, err)
		return OutcomeIgnored, nil
	default:
		a.logger.Warn("Constraint %s failed (%s): %v", c.Name, kind, err)
		return OutcomeFailed, err
	}
}
