package provisioning

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// migrationsTable records replayed migrations inside each tenant
// database. The layout mirrors common migration bookkeeping so the
// history survives tooling changes.
const migrationsTable = "_schema_migrations"

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
	id                  VARCHAR(36) PRIMARY KEY,
	checksum            VARCHAR(64) NOT NULL,
	finished_at         TIMESTAMPTZ,
	migration_name      VARCHAR(250) NOT NULL,
	logs                TEXT,
	rolled_back_at      TIMESTAMPTZ,
	started_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	applied_steps_count INTEGER NOT NULL DEFAULT 0
)`

// Replayer applies ordered SQL migration folders to a tenant database.
// Statements touching excluded tables are skipped, because those tables
// live in the default database only.
type Replayer struct {
	excluded    []*regexp.Regexp
	stmtTimeout time.Duration
	log         *zap.Logger
}

// NewReplayer creates a Replayer. excludedTables lists table names whose
// DDL must not be replayed into tenant databases.
func NewReplayer(excludedTables []string, stmtTimeout time.Duration, log *zap.Logger) *Replayer {
	if log == nil {
		log = zap.NewNop()
	}
	patterns := make([]*regexp.Regexp, 0, len(excludedTables))
	for _, table := range excludedTables {
		// Matches CREATE/ALTER TABLE, index targets, and FK references
		patterns = append(patterns, regexp.MustCompile(
			`(?i)\b(table|on|references)\s+"?`+regexp.QuoteMeta(strings.ToLower(table))+`"?\b`))
	}
	return &Replayer{
		excluded:    patterns,
		stmtTimeout: stmtTimeout,
		log:         log.Named("replayer"),
	}
}

// Replay applies every pending migration folder under migrationsDir to
// db, in lexicographic order. Each folder must contain a migration.sql
// file. Already applied migrations are skipped; a failed migration is
// marked rolled back and stops the replay.
func (r *Replayer) Replay(ctx context.Context, db *sql.DB, migrationsDir string) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	names, err := migrationFolders(migrationsDir)
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := r.replayOne(ctx, db, migrationsDir, name); err != nil {
			return err
		}
	}

	return nil
}

func (r *Replayer) replayOne(ctx context.Context, db *sql.DB, migrationsDir, name string) error {
	applied, err := r.isApplied(ctx, db, name)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	script, err := os.ReadFile(filepath.Join(migrationsDir, name, "migration.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration %q: %w", name, err)
	}

	checksum := sha256.Sum256(script)
	recordID := uuid.New().String()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO `+migrationsTable+` (id, checksum, migration_name, started_at) VALUES ($1, $2, $3, now())`,
		recordID, hex.EncodeToString(checksum[:]), name); err != nil {
		return fmt.Errorf("failed to record migration %q: %w", name, err)
	}

	steps := 0
	for _, stmt := range SplitStatements(string(script)) {
		if r.isExcluded(stmt) {
			logger.L(ctx).Debug("skipping statement for excluded table",
				zap.String("migration", name))
			continue
		}

		if err := r.execStatement(ctx, db, stmt); err != nil {
			r.markRolledBack(ctx, db, recordID, steps, err)
			return fmt.Errorf("migration %q failed at step %d: %w", name, steps+1, err)
		}
		steps++
	}

	if _, err := db.ExecContext(ctx,
		`UPDATE `+migrationsTable+` SET finished_at = now(), applied_steps_count = $1, logs = $2 WHERE id = $3`,
		steps, fmt.Sprintf("applied %d statements", steps), recordID); err != nil {
		return fmt.Errorf("failed to finalize migration %q: %w", name, err)
	}

	logger.L(ctx).Info("applied tenant migration",
		zap.String("migration", name),
		zap.Int("statements", steps))

	return nil
}

func (r *Replayer) execStatement(ctx context.Context, db *sql.DB, stmt string) error {
	if r.stmtTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stmtTimeout)
		defer cancel()
	}
	_, err := db.ExecContext(ctx, stmt)
	return err
}

// markRolledBack records the failure. finished_at stays NULL so the
// migration is retried on the next replay.
func (r *Replayer) markRolledBack(ctx context.Context, db *sql.DB, recordID string, steps int, cause error) {
	if _, err := db.ExecContext(ctx,
		`UPDATE `+migrationsTable+` SET rolled_back_at = now(), applied_steps_count = $1, logs = $2 WHERE id = $3`,
		steps, cause.Error(), recordID); err != nil {
		r.log.Error("failed to mark migration as rolled back",
			zap.String("record_id", recordID),
			zap.Error(err))
	}
}

func (r *Replayer) isApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+migrationsTable+` WHERE migration_name = $1 AND finished_at IS NOT NULL AND rolled_back_at IS NULL`,
		name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %q: %w", name, err)
	}
	return count > 0, nil
}

func (r *Replayer) isExcluded(stmt string) bool {
	for _, pattern := range r.excluded {
		if pattern.MatchString(stmt) {
			return true
		}
	}
	return false
}

// migrationFolders returns the migration folder names in lexicographic
// order. Non-directories and hidden entries are ignored.
func migrationFolders(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
