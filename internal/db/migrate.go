package db

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// The ledger records every applied script by name. Rows are inserted in
// the same transaction as the script's own statements, so a mid-script
// failure rolls the whole script back and it is retried wholesale on
// the next run.
const createLedgerSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ApplyMigrations applies every pending schema script exactly once, in
// lexicographic filename order. It is idempotent and safe to call on
// every process start. A failing script aborts the run at that script;
// callers must treat the error as fatal to startup.
func ApplyMigrations(ctx context.Context, conn *Connection, scripts fs.FS) error {
	if _, err := conn.Pool.Exec(ctx, createLedgerSQL); err != nil {
		return fmt.Errorf("failed to ensure migration ledger: %w", err)
	}

	names, err := scriptNames(scripts)
	if err != nil {
		return fmt.Errorf("failed to enumerate migration scripts: %w", err)
	}

	applied, err := appliedNames(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to load migration ledger: %w", err)
	}

	for _, name := range pendingNames(names, applied) {
		script, err := fs.ReadFile(scripts, name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		if err := applyScript(ctx, conn, name, string(script)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}

		log.Printf("Successfully executed migration: %s", name)
	}

	return nil
}

// applyScript runs one script and its ledger insert in a single
// transaction.
func applyScript(ctx context.Context, conn *Connection, name, script string) error {
	return conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, script); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			return err
		}
		return nil
	})
}

// scriptNames lists the *.up.sql entries of scripts sorted by name.
// Filename order is the only sequencing guarantee.
func scriptNames(scripts fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(scripts, ".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return names, nil
}

// pendingNames filters out scripts already recorded in the ledger,
// preserving order. Recorded scripts are skipped entirely; their
// content is not re-validated.
func pendingNames(names []string, applied map[string]bool) []string {
	var pending []string
	for _, name := range names {
		if !applied[name] {
			pending = append(pending, name)
		}
	}
	return pending
}

func appliedNames(ctx context.Context, conn *Connection) (map[string]bool, error) {
	rows, err := conn.Pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}

	return applied, rows.Err()
}
