// Package track implements the domain services: weight and injection
// logging, inventory, and titration schedules. Every mutation goes
// through the storage write path so it lands in the outbox atomically.
package track

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/doselog/internal/clock"
	"github.com/kalambet/doselog/internal/storage"
)

// ErrInsufficientStock is returned by UseInventory when the decrement
// would take quantity below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

type Service struct {
	store *storage.Store
	clock clock.Clock
}

func NewService(store *storage.Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System()
	}
	return &Service{store: store, clock: clk}
}

// newRowID prefers v7 so ids sort by creation time; v7 can fail only if
// the entropy source does, in which case v4 is good enough.
func newRowID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}

// --- Weight ---

type LogWeightParams struct {
	UserID     string
	RecordedAt time.Time // zero means now
	WeightKg   float64
	Note       string
}

func (s *Service) LogWeight(p LogWeightParams) (storage.WeightEntry, error) {
	if p.WeightKg <= 0 {
		return storage.WeightEntry{}, errors.New("weight_kg must be positive")
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = s.clock.Now()
	}

	id := newRowID()
	err := s.store.CreateRow("weight_entries", id, map[string]any{
		"user_id":     p.UserID,
		"recorded_at": p.RecordedAt.UTC().Format(time.RFC3339),
		"weight_kg":   p.WeightKg,
		"note":        p.Note,
	})
	if err != nil {
		return storage.WeightEntry{}, fmt.Errorf("logging weight: %w", err)
	}
	return s.store.FindWeightEntry(id)
}

func (s *Service) UpdateWeightNote(id, note string) error {
	return s.store.UpdateRow("weight_entries", id, map[string]any{"note": note})
}

func (s *Service) DeleteWeight(id string) error {
	return s.store.DeleteRow("weight_entries", id)
}

func (s *Service) ListWeights(userID string, limit int) ([]storage.WeightEntry, error) {
	return s.store.ListWeightEntries(userID, limit)
}

// --- Injections ---

type LogInjectionParams struct {
	UserID     string
	InjectedAt time.Time // zero means now
	Medication string
	DoseMg     float64
	Site       string
	Note       string
}

func (s *Service) LogInjection(p LogInjectionParams) (storage.Injection, error) {
	if p.Medication == "" {
		return storage.Injection{}, errors.New("medication is required")
	}
	if p.DoseMg <= 0 {
		return storage.Injection{}, errors.New("dose_mg must be positive")
	}
	if p.InjectedAt.IsZero() {
		p.InjectedAt = s.clock.Now()
	}

	id := newRowID()
	err := s.store.CreateRow("injections", id, map[string]any{
		"user_id":     p.UserID,
		"injected_at": p.InjectedAt.UTC().Format(time.RFC3339),
		"medication":  p.Medication,
		"dose_mg":     p.DoseMg,
		"site":        p.Site,
		"note":        p.Note,
	})
	if err != nil {
		return storage.Injection{}, fmt.Errorf("logging injection: %w", err)
	}
	return s.store.FindInjection(id)
}

func (s *Service) DeleteInjection(id string) error {
	return s.store.DeleteRow("injections", id)
}

func (s *Service) ListInjections(userID string, limit int) ([]storage.Injection, error) {
	return s.store.ListInjections(userID, limit)
}

func (s *Service) Medications(userID string) ([]string, error) {
	return s.store.DistinctMedications(userID)
}

// --- Inventory ---

type AddInventoryParams struct {
	UserID     string
	Medication string
	DoseMg     float64
	Quantity   int
	AcquiredAt time.Time // zero means now
	Note       string
}

func (s *Service) AddInventory(p AddInventoryParams) (storage.InventoryItem, error) {
	if p.Medication == "" {
		return storage.InventoryItem{}, errors.New("medication is required")
	}
	if p.Quantity <= 0 {
		return storage.InventoryItem{}, errors.New("quantity must be positive")
	}
	if p.AcquiredAt.IsZero() {
		p.AcquiredAt = s.clock.Now()
	}

	id := newRowID()
	err := s.store.CreateRow("inventory_items", id, map[string]any{
		"user_id":     p.UserID,
		"medication":  p.Medication,
		"dose_mg":     p.DoseMg,
		"quantity":    p.Quantity,
		"acquired_at": p.AcquiredAt.UTC().Format(time.RFC3339),
		"note":        p.Note,
	})
	if err != nil {
		return storage.InventoryItem{}, fmt.Errorf("adding inventory: %w", err)
	}
	return s.store.FindInventoryItem(id)
}

// UseInventory decrements an item's quantity by n. The decremented value
// goes through the write path so the remote sees it as a regular update.
func (s *Service) UseInventory(id string, n int) (storage.InventoryItem, error) {
	if n <= 0 {
		return storage.InventoryItem{}, errors.New("count must be positive")
	}
	item, err := s.store.FindInventoryItem(id)
	if err != nil {
		return storage.InventoryItem{}, err
	}
	if item.Quantity < n {
		return storage.InventoryItem{}, fmt.Errorf("%w: have %d, want %d", ErrInsufficientStock, item.Quantity, n)
	}
	if err := s.store.UpdateRow("inventory_items", id, map[string]any{
		"quantity": item.Quantity - n,
	}); err != nil {
		return storage.InventoryItem{}, fmt.Errorf("using inventory: %w", err)
	}
	return s.store.FindInventoryItem(id)
}

func (s *Service) DeleteInventory(id string) error {
	return s.store.DeleteRow("inventory_items", id)
}

func (s *Service) ListInventory(userID string) ([]storage.InventoryItem, error) {
	return s.store.ListInventoryItems(userID)
}

// --- Schedules ---

// PhaseSpec describes one titration step at schedule-creation time.
type PhaseSpec struct {
	DoseMg       float64
	DurationDays int
}

type CreateScheduleParams struct {
	UserID     string
	Medication string
	StartedAt  time.Time // zero means now
	Note       string
	Phases     []PhaseSpec
}

// CreateSchedule creates a schedule and its ordered phases. Each row is its
// own write-path call, so each replicates independently; the remote applies
// them in outbox order.
func (s *Service) CreateSchedule(p CreateScheduleParams) (storage.Schedule, []storage.SchedulePhase, error) {
	if p.Medication == "" {
		return storage.Schedule{}, nil, errors.New("medication is required")
	}
	if len(p.Phases) == 0 {
		return storage.Schedule{}, nil, errors.New("at least one phase is required")
	}
	for i, ph := range p.Phases {
		if ph.DoseMg <= 0 {
			return storage.Schedule{}, nil, fmt.Errorf("phase %d: dose_mg must be positive", i+1)
		}
		if ph.DurationDays <= 0 {
			return storage.Schedule{}, nil, fmt.Errorf("phase %d: duration_days must be positive", i+1)
		}
	}
	if p.StartedAt.IsZero() {
		p.StartedAt = s.clock.Now()
	}

	scheduleID := newRowID()
	err := s.store.CreateRow("schedules", scheduleID, map[string]any{
		"user_id":    p.UserID,
		"medication": p.Medication,
		"started_at": p.StartedAt.UTC().Format(time.RFC3339),
		"note":       p.Note,
	})
	if err != nil {
		return storage.Schedule{}, nil, fmt.Errorf("creating schedule: %w", err)
	}

	for i, ph := range p.Phases {
		err := s.store.CreateRow("schedule_phases", newRowID(), map[string]any{
			"user_id":       p.UserID,
			"schedule_id":   scheduleID,
			"phase_order":   i + 1,
			"dose_mg":       ph.DoseMg,
			"duration_days": ph.DurationDays,
		})
		if err != nil {
			return storage.Schedule{}, nil, fmt.Errorf("creating schedule phase %d: %w", i+1, err)
		}
	}

	schedule, err := s.store.FindSchedule(scheduleID)
	if err != nil {
		return storage.Schedule{}, nil, err
	}
	phases, err := s.store.ListSchedulePhases(scheduleID)
	if err != nil {
		return storage.Schedule{}, nil, err
	}
	return schedule, phases, nil
}

// DeleteSchedule soft-deletes the schedule and all its phases.
func (s *Service) DeleteSchedule(id string) error {
	phases, err := s.store.ListSchedulePhases(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRow("schedules", id); err != nil {
		return err
	}
	for _, ph := range phases {
		if err := s.store.DeleteRow("schedule_phases", ph.ID); err != nil {
			return fmt.Errorf("deleting phase %s: %w", ph.ID, err)
		}
	}
	return nil
}

func (s *Service) ListSchedules(userID string) ([]storage.Schedule, error) {
	return s.store.ListSchedules(userID)
}

func (s *Service) GetSchedule(id string) (storage.Schedule, []storage.SchedulePhase, error) {
	schedule, err := s.store.FindSchedule(id)
	if err != nil {
		return storage.Schedule{}, nil, err
	}
	phases, err := s.store.ListSchedulePhases(id)
	if err != nil {
		return storage.Schedule{}, nil, err
	}
	return schedule, phases, nil
}
