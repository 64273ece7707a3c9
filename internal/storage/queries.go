package storage

import "database/sql"

// Read paths. Every query here excludes soft-deleted rows; child rows
// (schedule phases) are filtered at their own level, not via the parent.

// --- Weight entries ---

const weightCols = "id, user_id, recorded_at, weight_kg, note, created_at, updated_at"

func scanWeightEntry(row interface{ Scan(...any) error }) (WeightEntry, error) {
	var w WeightEntry
	var recordedAt, createdAt, updatedAt string
	if err := row.Scan(&w.ID, &w.UserID, &recordedAt, &w.WeightKg, &w.Note, &createdAt, &updatedAt); err != nil {
		return WeightEntry{}, err
	}
	var err error
	if w.RecordedAt, err = parseTime("recorded_at", recordedAt); err != nil {
		return WeightEntry{}, err
	}
	if w.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return WeightEntry{}, err
	}
	if w.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return WeightEntry{}, err
	}
	return w, nil
}

func (s *Store) ListWeightEntries(userID string, limit int) ([]WeightEntry, error) {
	rows, err := s.db.Query(`
		SELECT `+weightCols+` FROM weight_entries
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY recorded_at DESC LIMIT ?`, userID, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []WeightEntry
	for rows.Next() {
		w, err := scanWeightEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

func (s *Store) FindWeightEntry(id string) (WeightEntry, error) {
	row := s.db.QueryRow(`
		SELECT `+weightCols+` FROM weight_entries
		WHERE id = ? AND deleted_at IS NULL`, id)
	w, err := scanWeightEntry(row)
	if err == sql.ErrNoRows {
		return WeightEntry{}, ErrNotFound
	}
	return w, err
}

// --- Injections ---

const injectionCols = "id, user_id, injected_at, medication, dose_mg, site, note, created_at, updated_at"

func scanInjection(row interface{ Scan(...any) error }) (Injection, error) {
	var in Injection
	var injectedAt, createdAt, updatedAt string
	if err := row.Scan(&in.ID, &in.UserID, &injectedAt, &in.Medication, &in.DoseMg, &in.Site, &in.Note, &createdAt, &updatedAt); err != nil {
		return Injection{}, err
	}
	var err error
	if in.InjectedAt, err = parseTime("injected_at", injectedAt); err != nil {
		return Injection{}, err
	}
	if in.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Injection{}, err
	}
	if in.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Injection{}, err
	}
	return in, nil
}

func (s *Store) ListInjections(userID string, limit int) ([]Injection, error) {
	rows, err := s.db.Query(`
		SELECT `+injectionCols+` FROM injections
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY injected_at DESC LIMIT ?`, userID, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Injection
	for rows.Next() {
		in, err := scanInjection(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, in)
	}
	return results, rows.Err()
}

func (s *Store) FindInjection(id string) (Injection, error) {
	row := s.db.QueryRow(`
		SELECT `+injectionCols+` FROM injections
		WHERE id = ? AND deleted_at IS NULL`, id)
	in, err := scanInjection(row)
	if err == sql.ErrNoRows {
		return Injection{}, ErrNotFound
	}
	return in, err
}

// DistinctMedications lists medications the user has injected, most recent
// first.
func (s *Store) DistinctMedications(userID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT medication FROM injections
		WHERE user_id = ? AND deleted_at IS NULL
		GROUP BY medication ORDER BY MAX(injected_at) DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// --- Inventory ---

const inventoryCols = "id, user_id, medication, dose_mg, quantity, acquired_at, note, created_at, updated_at"

func scanInventoryItem(row interface{ Scan(...any) error }) (InventoryItem, error) {
	var it InventoryItem
	var acquiredAt, createdAt, updatedAt string
	if err := row.Scan(&it.ID, &it.UserID, &it.Medication, &it.DoseMg, &it.Quantity, &acquiredAt, &it.Note, &createdAt, &updatedAt); err != nil {
		return InventoryItem{}, err
	}
	var err error
	if it.AcquiredAt, err = parseTime("acquired_at", acquiredAt); err != nil {
		return InventoryItem{}, err
	}
	if it.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return InventoryItem{}, err
	}
	if it.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return InventoryItem{}, err
	}
	return it, nil
}

func (s *Store) ListInventoryItems(userID string) ([]InventoryItem, error) {
	rows, err := s.db.Query(`
		SELECT `+inventoryCols+` FROM inventory_items
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY acquired_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []InventoryItem
	for rows.Next() {
		it, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, it)
	}
	return results, rows.Err()
}

func (s *Store) FindInventoryItem(id string) (InventoryItem, error) {
	row := s.db.QueryRow(`
		SELECT `+inventoryCols+` FROM inventory_items
		WHERE id = ? AND deleted_at IS NULL`, id)
	it, err := scanInventoryItem(row)
	if err == sql.ErrNoRows {
		return InventoryItem{}, ErrNotFound
	}
	return it, err
}

// --- Schedules ---

const scheduleCols = "id, user_id, medication, started_at, note, created_at, updated_at"

func scanSchedule(row interface{ Scan(...any) error }) (Schedule, error) {
	var sc Schedule
	var startedAt, createdAt, updatedAt string
	if err := row.Scan(&sc.ID, &sc.UserID, &sc.Medication, &startedAt, &sc.Note, &createdAt, &updatedAt); err != nil {
		return Schedule{}, err
	}
	var err error
	if sc.StartedAt, err = parseTime("started_at", startedAt); err != nil {
		return Schedule{}, err
	}
	if sc.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Schedule{}, err
	}
	if sc.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Schedule{}, err
	}
	return sc, nil
}

func (s *Store) ListSchedules(userID string) ([]Schedule, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduleCols+` FROM schedules
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

func (s *Store) FindSchedule(id string) (Schedule, error) {
	row := s.db.QueryRow(`
		SELECT `+scheduleCols+` FROM schedules
		WHERE id = ? AND deleted_at IS NULL`, id)
	sc, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return Schedule{}, ErrNotFound
	}
	return sc, err
}

// ListSchedulePhases returns a schedule's live phases in titration order.
func (s *Store) ListSchedulePhases(scheduleID string) ([]SchedulePhase, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, schedule_id, phase_order, dose_mg, duration_days, created_at, updated_at
		FROM schedule_phases
		WHERE schedule_id = ? AND deleted_at IS NULL
		ORDER BY phase_order ASC`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SchedulePhase
	for rows.Next() {
		var p SchedulePhase
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.UserID, &p.ScheduleID, &p.PhaseOrder, &p.DoseMg, &p.DurationDays, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func normLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
