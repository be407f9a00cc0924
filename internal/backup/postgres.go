package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clavora/clavora/internal/command"
)

// validDBNameRe matches only alphanumeric characters and underscores.
// This prevents SQL injection in database names interpolated into DDL.
var validDBNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// PostgresComponent exports and restores one Postgres database through the
// pg_dump/psql CLI tools. Both the primary application database and the
// auxiliary identity-provider database are instances of this component.
type PostgresComponent struct {
	logger      zerolog.Logger
	runner      command.Runner
	name        string
	dumpFile    string
	databaseURL string
}

func NewPostgresComponent(logger zerolog.Logger, runner command.Runner, name, databaseURL string) *PostgresComponent {
	return &PostgresComponent{
		logger:      logger.With().Str("component", name).Logger(),
		runner:      runner,
		name:        name,
		dumpFile:    name + ".sql.gz",
		databaseURL: databaseURL,
	}
}

func (c *PostgresComponent) Name() string { return c.name }

// Fatal: a backup that lacks a required database dump is worthless and must
// never be mistaken for a restorable snapshot.
func (c *PostgresComponent) Fatal() bool { return true }

func (c *PostgresComponent) Export(ctx context.Context, dir string) ([]string, error) {
	dumpPath := filepath.Join(dir, c.dumpFile)
	c.logger.Info().Str("path", dumpPath).Msg("dumping database")

	shell := fmt.Sprintf("pg_dump --no-owner --no-acl %s | gzip > %s",
		shellQuote(c.databaseURL), shellQuote(dumpPath))
	res, err := c.runner.Run(ctx, command.Command{Name: "bash", Args: []string{"-c", "set -o pipefail; " + shell}})
	if err != nil {
		return nil, fmt.Errorf("run pg_dump: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("pg_dump exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	info, err := os.Stat(dumpPath)
	if err != nil {
		return nil, fmt.Errorf("stat dump: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("dump %s is empty", c.dumpFile)
	}

	return nil, nil
}

func (c *PostgresComponent) Restore(ctx context.Context, dir string) ([]string, error) {
	dumpPath := filepath.Join(dir, c.dumpFile)
	if _, err := os.Stat(dumpPath); err != nil {
		return nil, ErrDumpNotFound
	}

	dbName, adminURL, err := splitDatabaseURL(c.databaseURL)
	if err != nil {
		return nil, err
	}

	var warnings []string

	// Kick existing connections off the target first; an open session would
	// block the drop. Failure here is tolerable, the drop will tell us.
	terminateSQL := fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid()", dbName)
	if res, err := c.psql(ctx, adminURL, terminateSQL); err != nil {
		return nil, fmt.Errorf("run psql: %w", err)
	} else if res.ExitCode != 0 {
		warnings = append(warnings, fmt.Sprintf("%s: terminate connections: %s", c.name, strings.TrimSpace(res.Stderr)))
	}

	// Drop and recreate. These two are the only fatal steps of the replay:
	// without a fresh database nothing below can be trusted.
	c.logger.Info().Str("database", dbName).Msg("dropping and recreating database")
	if res, err := c.psql(ctx, adminURL, fmt.Sprintf(`DROP DATABASE IF EXISTS "%s"`, dbName)); err != nil {
		return warnings, fmt.Errorf("run psql: %w", err)
	} else if res.ExitCode != 0 {
		return warnings, fmt.Errorf("drop database %s: %s", dbName, strings.TrimSpace(res.Stderr))
	}
	if res, err := c.psql(ctx, adminURL, fmt.Sprintf(`CREATE DATABASE "%s"`, dbName)); err != nil {
		return warnings, fmt.Errorf("run psql: %w", err)
	} else if res.ExitCode != 0 {
		return warnings, fmt.Errorf("create database %s: %s", dbName, strings.TrimSpace(res.Stderr))
	}

	// Replay the dump. psql keeps going past per-object errors; those show up
	// as ERROR lines on stderr and are recorded as warnings, since schema
	// objects may legitimately be skipped.
	c.logger.Info().Str("database", dbName).Str("dump", c.dumpFile).Msg("replaying dump")
	shell := fmt.Sprintf("gunzip -c %s | psql %s", shellQuote(dumpPath), shellQuote(c.databaseURL))
	res, err := c.runner.Run(ctx, command.Command{Name: "bash", Args: []string{"-c", shell}})
	if err != nil {
		return warnings, fmt.Errorf("run psql replay: %w", err)
	}
	if res.ExitCode != 0 {
		return warnings, fmt.Errorf("replay dump into %s: %s", dbName, strings.TrimSpace(res.Stderr))
	}
	for _, line := range strings.Split(res.Stderr, "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			warnings = append(warnings, fmt.Sprintf("%s: replay: %s", c.name, line))
		}
	}

	return warnings, nil
}

func (c *PostgresComponent) psql(ctx context.Context, dbURL, sql string) (command.Result, error) {
	return c.runner.Run(ctx, command.Command{
		Name: "psql",
		Args: []string{dbURL, "-v", "ON_ERROR_STOP=1", "-c", sql},
	})
}

// splitDatabaseURL returns the database name from the URL path and a URL
// pointing at the maintenance database, for DDL that cannot run against the
// database being dropped.
func splitDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", fmt.Errorf("parse database URL: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return "", "", fmt.Errorf("database URL %s has no database name", u.Redacted())
	}
	if !validDBNameRe.MatchString(dbName) {
		return "", "", fmt.Errorf("invalid database name %q: only alphanumeric and underscore allowed", dbName)
	}

	admin := *u
	admin.Path = "/postgres"
	return dbName, admin.String(), nil
}

// shellQuote wraps an argument in single quotes for safe shell usage.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
