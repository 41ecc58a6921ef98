package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/server/metrics"
	"github.com/apimgr/memberkit/src/utils"
)

// Strategy names the schema install path that produced the schema
type Strategy string

const (
	StrategyTransactional Strategy = "transactional"
	StrategyFallback      Strategy = "fallback"
)

// SchemaInstaller creates the application tables, seeds default settings
// and applies foreign keys
type SchemaInstaller struct {
	dialect     database.Dialect
	settings    *SettingsSeeder
	constraints *ConstraintApplier
	logger      *utils.Logger

	// wrap lets tests interpose on the executor a strategy runs against
	wrap func(Strategy, database.Execer) database.Execer
}

// NewSchemaInstaller creates a schema installer
func NewSchemaInstaller(dialect database.Dialect, settings *SettingsSeeder, constraints *ConstraintApplier, logger *utils.Logger) *SchemaInstaller {
	return &SchemaInstaller{
		dialect:     dialect,
		settings:    settings,
		constraints: constraints,
		logger:      logger,
	}
}

func (s *SchemaInstaller) execer(strategy Strategy, q database.Execer) database.Execer {
	if s.wrap != nil {
		return s.wrap(strategy, q)
	}
	return q
}

// Install runs the transactional path and falls back to statement-by-statement
// installation when it fails for any reason. Only a fallback failure is fatal.
func (s *SchemaInstaller) Install(ctx context.Context, db *sql.DB) (Strategy, error) {
	err := s.InstallTransactional(ctx, db)
	if err == nil {
		metrics.RecordSchemaInstall(string(StrategyTransactional), "success")
		return StrategyTransactional, nil
	}
	metrics.RecordSchemaInstall(string(StrategyTransactional), "failed")
	s.logger.Warn("Transactional schema install failed, retrying without transaction: %v", err)

	if err := s.InstallFallback(ctx, db); err != nil {
		metrics.RecordSchemaInstall(string(StrategyFallback), "failed")
		s.logger.Error("Fallback schema install failed: %v", err)
		return StrategyFallback, err
	}
	metrics.RecordSchemaInstall(string(StrategyFallback), "success")
	return StrategyFallback, nil
}

// InstallTransactional creates tables, seeds settings and applies
// constraints inside one transaction. Any failure rolls everything back;
// engines that auto-commit DDL only lose the DML.
func (s *SchemaInstaller) InstallTransactional(ctx context.Context, db *sql.DB) error {
	err := database.WithTransaction(ctx, db, func(tx *sql.Tx) error {
		q := s.execer(StrategyTransactional, tx)

		if err := s.createTables(ctx, q, false); err != nil {
			return err
		}
		if _, err := s.settings.seed(ctx, q, false); err != nil {
			return &SchemaError{Strategy: StrategyTransactional, Table: "settings", Err: err}
		}
		result := s.constraints.Apply(ctx, q)
		s.logger.Info("Constraints: %s", result.Summary())
		return nil
	})
	if err == nil {
		return nil
	}

	var se *SchemaError
	if errors.As(err, &se) {
		return err
	}
	return &SchemaError{Strategy: StrategyTransactional, Err: err}
}

// InstallFallback runs the same sequence with every statement committing on
// its own. Failures are logged and skipped; afterwards every table must exist.
func (s *SchemaInstaller) InstallFallback(ctx context.Context, db *sql.DB) error {
	q := s.execer(StrategyFallback, db)

	if err := s.createTables(ctx, q, true); err != nil {
		s.logger.Warn("Fallback table creation incomplete: %v", err)
	}
	if n, err := s.settings.seed(ctx, q, true); err != nil {
		s.logger.Warn("Fallback settings seed incomplete (%d inserted): %v", n, err)
	}
	result := s.constraints.Apply(ctx, q)
	s.logger.Info("Constraints: %s", result.Summary())

	for _, name := range database.TableNames() {
		ok, err := database.TableExists(ctx, db, s.dialect, name)
		if err != nil {
			return &SchemaError{Strategy: StrategyFallback, Table: name, Err: err}
		}
		if !ok {
			return &SchemaError{Strategy: StrategyFallback, Table: name, Err: ErrMissingTable}
		}
	}
	return nil
}

// createTables creates the tables in dependency order. In tolerant mode each
// statement may fail on its own without stopping the sequence.
func (s *SchemaInstaller) createTables(ctx context.Context, q database.Execer, tolerant bool) error {
	strategy := StrategyTransactional
	if tolerant {
		strategy = StrategyFallback
	}

	var firstErr error
	for _, table := range database.Tables {
		for _, stmt := range s.dialect.CreateTableSQL(table) {
			_, err := database.ExecContext(ctx, q, database.TimeoutDDL, stmt)
			if err == nil {
				continue
			}

			kind := database.Classify(err)
			if !tolerant {
				return &SchemaError{Strategy: strategy, Table: table.Name, Err: err}
			}
			if kind.Benign() {
				s.logger.Debug("Table %s: %s (%v)", table.Name, kind, err)
				continue
			}
			s.logger.Warn("Table %s: statement failed (%s): %v", table.Name, kind, err)
			if firstErr == nil {
				firstErr = &SchemaError{Strategy: strategy, Table: table.Name, Err: err}
			}
		}
		s.logger.Debug("Table %s ready", table.Name)
	}
	return firstErr
}
