package persistence

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"blogwire/internal/logger"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrationFiles embed.FS

// Scripts live under migrations/<driver>/NNN_words_describing_it.sql.
const versionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

var errNothingApplied = errors.New("no applied migration to roll back")

// MigrationStatus is one script and whether its version is recorded as applied.
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

type script struct {
	version int
	name    string
	body    string
}

// MigrationManager applies the embedded schema scripts of one dialect in version order.
type MigrationManager struct {
	db  *sqlx.DB
	dir string
	log *logger.Logger
}

func NewMigrationManager(db *SQLDB) *MigrationManager {
	return &MigrationManager{
		db:  db.db,
		dir: path.Join("migrations", db.DriverName()),
		log: logger.Get(),
	}
}

// Migrate applies every script whose version is not recorded yet, each in its own
// transaction. Re-running it is a no-op.
func (m *MigrationManager) Migrate(ctx context.Context) error {
	scripts, done, err := m.snapshot(ctx)
	if err != nil {
		return err
	}

	count := 0
	for _, s := range scripts {
		if done[s.version] {
			continue
		}
		m.log.Info("Applying schema script", "version", s.version, "name", s.name, "dialect", m.db.DriverName())
		if err := m.apply(ctx, s); err != nil {
			return fmt.Errorf("schema version %d: %w", s.version, err)
		}
		count++
	}

	if count == 0 {
		m.log.Debug("Schema up to date", "dialect", m.db.DriverName())
		return nil
	}
	m.log.Info("Schema migrated", "applied", count)
	return nil
}

func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	scripts, done, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, MigrationStatus{Version: s.version, Description: s.name, Applied: done[s.version]})
	}
	return out, nil
}

// Rollback deletes the newest version record. The schema itself is left untouched.
func (m *MigrationManager) Rollback(ctx context.Context) error {
	versions, err := m.recorded(ctx)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return errNothingApplied
	}

	last := versions[len(versions)-1]
	if _, err := m.db.ExecContext(ctx, m.db.Rebind(`DELETE FROM schema_migrations WHERE version = ?`), last); err != nil {
		return fmt.Errorf("forget schema version %d: %w", last, err)
	}
	m.log.Warn("Schema version record removed, revert its changes by hand", "version", last)
	return nil
}

// snapshot returns the embedded scripts and the set of versions already recorded.
func (m *MigrationManager) snapshot(ctx context.Context) ([]script, map[int]bool, error) {
	if _, err := m.db.ExecContext(ctx, versionTable); err != nil {
		return nil, nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	versions, err := m.recorded(ctx)
	if err != nil {
		return nil, nil, err
	}
	scripts, err := readScripts(migrationFiles, m.dir)
	if err != nil {
		return nil, nil, err
	}

	done := make(map[int]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return scripts, done, nil
}

func (m *MigrationManager) recorded(ctx context.Context) ([]int, error) {
	var versions []int
	if err := m.db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations ORDER BY version`); err != nil {
		return nil, fmt.Errorf("read schema versions: %w", err)
	}
	return versions, nil
}

func (m *MigrationManager) apply(ctx context.Context, s script) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.body); err != nil {
		return err
	}
	record := tx.Rebind(`INSERT INTO schema_migrations (version, description) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`)
	if _, err := tx.ExecContext(ctx, record, s.version, s.name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// readScripts loads the .sql files of dir sorted by version. Files without a
// numeric prefix are ignored; a version used twice is an error.
func readScripts(fsys fs.FS, dir string) ([]script, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var scripts []script
	for _, e := range entries {
		version, name, ok := parseScriptName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script{version: version, name: name, body: string(body)})
	}

	slices.SortFunc(scripts, func(a, b script) int { return a.version - b.version })
	for i := 1; i < len(scripts); i++ {
		if scripts[i].version == scripts[i-1].version {
			return nil, fmt.Errorf("schema version %d defined twice in %s", scripts[i].version, dir)
		}
	}
	return scripts, nil
}

// parseScriptName splits "003_add_link_index.sql" into 3 and "add link index".
func parseScriptName(file string) (int, string, bool) {
	stem, isSQL := strings.CutSuffix(file, ".sql")
	prefix, rest, found := strings.Cut(stem, "_")
	if !isSQL || !found || rest == "" {
		return 0, "", false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", false
	}
	return version, strings.ReplaceAll(rest, "_", " "), true
}
