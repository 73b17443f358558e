// Package repository persists session and plan lifecycle records for
// diagnostics and post-mortem inspection.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Badaboom1995/gekto-sub001/internal/model"
)

// RecordRepository writes lifecycle records. The Record* methods satisfy
// the pool's recorder hook and are best-effort: a failed insert is
// logged, never propagated into session handling.
type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository creates a repository over an initialized database.
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// RecordSessionState appends one state transition for a session.
func (r *RecordRepository) RecordSessionState(id string, state model.SessionState) {
	_, err := r.db.Exec(
		`INSERT INTO session_events (session_id, state) VALUES (?, ?)`,
		id, string(state),
	)
	if err != nil {
		log.Printf("repository: record state %s/%s: %v", id, state, err)
	}
}

// RecordPlan stores a freshly created plan with its task breakdown.
func (r *RecordRepository) RecordPlan(plan *model.ExecutionPlan) {
	tasks, err := json.Marshal(plan.Tasks)
	if err != nil {
		log.Printf("repository: encode tasks for plan %s: %v", plan.ID, err)
		return
	}

	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO plans (id, status, tasks, created_at) VALUES (?, ?, ?, ?)`,
		plan.ID, string(plan.Status), string(tasks), plan.CreatedAt,
	)
	if err != nil {
		log.Printf("repository: record plan %s: %v", plan.ID, err)
	}
}

// RecordPlanStatus updates a plan's status.
func (r *RecordRepository) RecordPlanStatus(id string, status model.PlanStatus) {
	_, err := r.db.Exec(
		`UPDATE plans SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		log.Printf("repository: record plan status %s/%s: %v", id, status, err)
	}
}

// StateRecord is one recorded session state transition.
type StateRecord struct {
	SessionID  string
	State      model.SessionState
	RecordedAt time.Time
}

// SessionHistory returns every recorded transition for a session, oldest
// first.
func (r *RecordRepository) SessionHistory(ctx context.Context, sessionID string) ([]StateRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, state, created_at FROM session_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: query history for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var records []StateRecord
	for rows.Next() {
		var rec StateRecord
		var state string
		if err := rows.Scan(&rec.SessionID, &state, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("repository: scan history row: %w", err)
		}
		rec.State = model.SessionState(state)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, model.ErrSessionNotFound
	}
	return records, nil
}

// Plan loads one recorded plan.
func (r *RecordRepository) Plan(ctx context.Context, id string) (*model.ExecutionPlan, error) {
	var plan model.ExecutionPlan
	var status, tasks string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, status, tasks, created_at FROM plans WHERE id = ?`,
		id,
	).Scan(&plan.ID, &status, &tasks, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: load plan %s: %w", id, err)
	}

	plan.Status = model.PlanStatus(status)
	if err := json.Unmarshal([]byte(tasks), &plan.Tasks); err != nil {
		return nil, fmt.Errorf("repository: decode tasks for plan %s: %w", id, err)
	}
	return &plan, nil
}
