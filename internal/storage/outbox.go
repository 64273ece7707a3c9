package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// GetOutbox returns up to limit pending entries, oldest first (FIFO by id).
// limit <= 0 means no limit.
func (s *Store) GetOutbox(limit int) ([]OutboxEntry, error) {
	query := `SELECT id, table_name, row_id, operation, payload, created_at
		FROM outbox ORDER BY id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TableName, &e.RowID, &e.Operation, &e.Payload, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearOutbox removes exactly the given entries; unspecified entries are
// untouched. Clearing is acknowledgment-driven: only the replicator calls
// this, with the ids the remote accepted.
func (s *Store) ClearOutbox(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimPrefix(strings.Repeat(",?", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec("DELETE FROM outbox WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("clearing outbox entries: %w", err)
	}
	return nil
}

// CountOutbox returns the number of pending entries.
func (s *Store) CountOutbox() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM outbox").Scan(&n)
	return n, err
}

// GetMeta reads a sync-metadata value; ErrNotFound if the key was never set.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM sync_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// SetMeta creates or overwrites a sync-metadata value in place.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}
