package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sentinel-agent/internal/domain"
)

// AnalysisRecord is one completed alert analysis.
type AnalysisRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	AlertID    string    `json:"alert_id"`
	AttackerIP string    `json:"attacker_ip"`
	VictimIP   string    `json:"victim_ip"`
	AttackType string    `json:"attack_type"`
	Alert      string    `json:"alert"`
	Assessment string    `json:"assessment"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryStore persists completed analyses in SQLite.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (or creates) the history database at dbPath and runs
// the schema migration. Parent directories are created as needed.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS analyses (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			alert_id    TEXT NOT NULL DEFAULT '',
			attacker_ip TEXT NOT NULL,
			victim_ip   TEXT NOT NULL,
			attack_type TEXT NOT NULL,
			alert       TEXT NOT NULL,
			assessment  TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Record stores a completed analysis.
func (s *HistoryStore) Record(_ context.Context, runID string, a *domain.Alert, assessment string) error {
	alertJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(
		"INSERT INTO analyses (run_id, alert_id, attacker_ip, victim_ip, attack_type, alert, assessment, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		runID, a.AlertID, a.AttackerIP, a.VictimIP, a.AttackType,
		string(alertJSON), assessment, now.Format(time.RFC3339Nano),
	)
	return err
}

// Recent returns the most recent analyses, newest first.
func (s *HistoryStore) Recent(_ context.Context, limit int) ([]AnalysisRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		"SELECT id, run_id, alert_id, attacker_ip, victim_ip, attack_type, alert, assessment, created_at FROM analyses ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AnalysisRecord
	for rows.Next() {
		var r AnalysisRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.RunID, &r.AlertID, &r.AttackerIP, &r.VictimIP,
			&r.AttackType, &r.Alert, &r.Assessment, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}
