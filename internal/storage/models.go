package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist or has
// been soft-deleted.
var ErrNotFound = errors.New("not found")

// ErrUnknownTable is returned by the write path for tables outside the
// synced-table registry.
var ErrUnknownTable = errors.New("unknown table")

// ErrUnknownColumn is returned by the write path when a payload references
// a column the target table does not have.
var ErrUnknownColumn = errors.New("unknown column")

// Outbox operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// OutboxEntry is one pending replication intent. Entries are immutable and
// ordered by ID; they leave the outbox only through ClearOutbox.
type OutboxEntry struct {
	ID        int64     `json:"id"`
	TableName string    `json:"table_name"`
	RowID     string    `json:"row_id"`
	Operation string    `json:"operation"`
	Payload   string    `json:"payload"` // JSON object stored as text
	CreatedAt time.Time `json:"created_at"`
}

type WeightEntry struct {
	ID         string
	UserID     string
	RecordedAt time.Time
	WeightKg   float64
	Note       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Injection struct {
	ID         string
	UserID     string
	InjectedAt time.Time
	Medication string
	DoseMg     float64
	Site       string
	Note       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type InventoryItem struct {
	ID         string
	UserID     string
	Medication string
	DoseMg     float64
	Quantity   int
	AcquiredAt time.Time
	Note       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Schedule struct {
	ID         string
	UserID     string
	Medication string
	StartedAt  time.Time
	Note       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type SchedulePhase struct {
	ID           string
	UserID       string
	ScheduleID   string
	PhaseOrder   int
	DoseMg       float64
	DurationDays int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
