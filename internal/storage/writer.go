package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// syncedTables registers every table the write path may mutate, with the
// domain columns a payload is allowed to carry. id, created_at, updated_at
// and deleted_at are managed by the write path itself.
var syncedTables = map[string]map[string]bool{
	"weight_entries": {
		"user_id": true, "recorded_at": true, "weight_kg": true, "note": true,
	},
	"injections": {
		"user_id": true, "injected_at": true, "medication": true,
		"dose_mg": true, "site": true, "note": true,
	},
	"inventory_items": {
		"user_id": true, "medication": true, "dose_mg": true,
		"quantity": true, "acquired_at": true, "note": true,
	},
	"schedules": {
		"user_id": true, "medication": true, "started_at": true, "note": true,
	},
	"schedule_phases": {
		"user_id": true, "schedule_id": true, "phase_order": true,
		"dose_mg": true, "duration_days": true,
	},
}

func validateFields(table string, fields map[string]any) error {
	allowed, ok := syncedTables[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	for col := range fields {
		if !allowed[col] {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, col)
		}
	}
	return nil
}

// sortedKeys keeps generated SQL deterministic.
func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CreateRow inserts a new domain row and appends one insert-operation outbox
// entry, in a single transaction. Timestamps come from the store's clock.
// The outbox payload is the full row snapshot.
func (s *Store) CreateRow(table, id string, fields map[string]any) error {
	if err := validateFields(table, fields); err != nil {
		return err
	}
	now := formatTime(s.clock.Now())

	cols := []string{"id"}
	args := []any{id}
	for _, k := range sortedKeys(fields) {
		cols = append(cols, k)
		args = append(args, fields[k])
	}
	cols = append(cols, "created_at", "updated_at")
	args = append(args, now, now)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		strings.TrimPrefix(strings.Repeat(", ?", len(cols)), ", "),
	)

	snapshot := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		snapshot[k] = v
	}
	snapshot["id"] = id
	snapshot["created_at"] = now
	snapshot["updated_at"] = now

	return s.writeTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("inserting %s row: %w", table, err)
		}
		return appendOutbox(tx, table, id, OpInsert, snapshot, now)
	})
}

// UpdateRow applies a partial update to an existing row and appends one
// update-operation outbox entry whose payload holds only the changed fields
// plus the new updated_at. Soft-deleted and missing rows yield ErrNotFound.
func (s *Store) UpdateRow(table, id string, fields map[string]any) error {
	if err := validateFields(table, fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("update %s/%s: no fields", table, id)
	}
	now := formatTime(s.clock.Now())

	var sets []string
	var args []any
	for _, k := range sortedKeys(fields) {
		sets = append(sets, k+" = ?")
		args = append(args, fields[k])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND deleted_at IS NULL",
		table, strings.Join(sets, ", "))

	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["updated_at"] = now

	return s.writeTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("updating %s row: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return appendOutbox(tx, table, id, OpUpdate, payload, now)
	})
}

// DeleteRow soft-deletes a row: deleted_at is set, the physical row remains,
// and a delete-operation outbox entry with a minimal identifying payload is
// appended so the remote side can apply a real delete or tombstone.
func (s *Store) DeleteRow(table, id string) error {
	if _, ok := syncedTables[table]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	now := formatTime(s.clock.Now())

	query := fmt.Sprintf(
		"UPDATE %s SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		table)

	return s.writeTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(query, now, now, id)
		if err != nil {
			return fmt.Errorf("deleting %s row: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return appendOutbox(tx, table, id, OpDelete, map[string]any{"id": id}, now)
	})
}

// writeTx runs fn in a transaction; both the row mutation and the outbox
// append commit together or not at all.
func (s *Store) writeTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning write transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func appendOutbox(tx *sql.Tx, table, rowID, op string, payload map[string]any, now string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling outbox payload: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO outbox (table_name, row_id, operation, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		table, rowID, op, string(data), now,
	); err != nil {
		return fmt.Errorf("appending outbox entry: %w", err)
	}
	return nil
}
