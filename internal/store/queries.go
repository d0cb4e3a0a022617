package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
)

// Package operations

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// upsertPackage inserts or replaces the row for a package.
func upsertPackage(db execer, rec *PackageRecord) error {
	query := `
		INSERT OR REPLACE INTO packages
		(owner, name, hash, size_bytes, root, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		rec.ID.Owner,
		rec.ID.Name,
		rec.Hash,
		rec.SizeBytes,
		rec.Root,
		rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return wrapQueryErr(fmt.Sprintf("failed to upsert package %s", rec.ID), err)
	}
	return nil
}

// GetPackage retrieves the row for id. A package the index has never seen
// yields an error wrapping apperr.ErrNotFound.
func (x *Index) GetPackage(id pkgid.ID) (*PackageRecord, error) {
	query := `
		SELECT owner, name, hash, size_bytes, root, updated_at
		FROM packages
		WHERE owner = ? AND name = ?
	`

	rec, err := scanPackage(x.db.QueryRow(query, id.Owner, id.Name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("package %s not indexed: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, wrapQueryErr(fmt.Sprintf("failed to get package %s", id), err)
	}
	return rec, nil
}

// ListPackageRecords returns every indexed package ordered by owner, name.
func (x *Index) ListPackageRecords() ([]*PackageRecord, error) {
	query := `
		SELECT owner, name, hash, size_bytes, root, updated_at
		FROM packages
		ORDER BY owner, name
	`

	rows, err := x.db.Query(query)
	if err != nil {
		return nil, wrapQueryErr("failed to list packages", err)
	}
	defer rows.Close()

	var records []*PackageRecord
	for rows.Next() {
		rec, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packages: %w", err)
	}
	return records, nil
}

// deletePackage removes the row for id.
func deletePackage(db execer, id pkgid.ID) error {
	result, err := db.Exec("DELETE FROM packages WHERE owner = ? AND name = ?", id.Owner, id.Name)
	if err != nil {
		return wrapQueryErr(fmt.Sprintf("failed to delete package %s", id), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("package %s not indexed: %w", id, apperr.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*PackageRecord, error) {
	var rec PackageRecord
	var updatedAt string
	if err := row.Scan(
		&rec.ID.Owner,
		&rec.ID.Name,
		&rec.Hash,
		&rec.SizeBytes,
		&rec.Root,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for %s: %w", rec.ID, err)
	}
	rec.UpdatedAt = t
	return &rec, nil
}

// Event operations

// eventTimeLayout is fixed-width so timestamps sort lexically.
const eventTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InsertEvent appends ev to the history. An empty ID is filled with a new
// UUID and a zero timestamp with the current time.
func (x *Index) InsertEvent(ev *Event) error {
	return insertEvent(x.db, ev)
}

func insertEvent(db execer, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	query := `
		INSERT INTO events (id, owner, name, action, hash, size_bytes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		ev.ID,
		ev.Package.Owner,
		ev.Package.Name,
		string(ev.Action),
		ev.Hash,
		ev.SizeBytes,
		ev.Timestamp.UTC().Format(eventTimeLayout),
	)
	if err != nil {
		return wrapQueryErr(fmt.Sprintf("failed to insert event for %s", ev.Package), err)
	}
	return nil
}

// Record appends ev and updates the package row to match it in one
// transaction: build and install upsert the row from rec, remove deletes
// it, push leaves it alone.
func (x *Index) Record(ev *Event, rec *PackageRecord) error {
	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertEvent(tx, ev); err != nil {
		return err
	}

	switch ev.Action {
	case ActionBuild, ActionInstall:
		if rec != nil {
			if err := upsertPackage(tx, rec); err != nil {
				return err
			}
		}
	case ActionRemove:
		if err := deletePackage(tx, ev.Package); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

// ListEvents returns history newest first. A nil id lists every package;
// limit <= 0 means no limit.
func (x *Index) ListEvents(id *pkgid.ID, limit int) ([]*Event, error) {
	query := `
		SELECT id, owner, name, action, COALESCE(hash, ''), COALESCE(size_bytes, 0), timestamp
		FROM events
	`
	var args []any
	if id != nil {
		query += " WHERE owner = ? AND name = ?"
		args = append(args, id.Owner, id.Name)
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := x.db.Query(query, args...)
	if err != nil {
		return nil, wrapQueryErr("failed to list events", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var action, ts string
		if err := rows.Scan(
			&ev.ID,
			&ev.Package.Owner,
			&ev.Package.Name,
			&action,
			&ev.Hash,
			&ev.SizeBytes,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Action = Action(action)
		ev.Timestamp, err = time.Parse(eventTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// EventCount returns the total number of recorded events.
func (x *Index) EventCount() (int, error) {
	var count int
	if err := x.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, wrapQueryErr("failed to count events", err)
	}
	return count, nil
}
