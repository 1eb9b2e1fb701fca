package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/models"
)

const defaultBacktestTable = "backtest_results"

// OpenClickHouse opens and pings a ClickHouse connection pool
func OpenClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 9000
	}
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, strconv.Itoa(port))},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return db, nil
}

// ClickHouseBacktestHistory appends backtest results to a MergeTree table.
// Rows are never updated.
type ClickHouseBacktestHistory struct {
	db    *sql.DB
	table string
}

// NewClickHouseBacktestHistory creates the history for table, defaulting to backtest_results
func NewClickHouseBacktestHistory(db *sql.DB, table string) *ClickHouseBacktestHistory {
	if table == "" {
		table = defaultBacktestTable
	}
	return &ClickHouseBacktestHistory{db: db, table: table}
}

// InitSchema creates the table if it does not exist
func (h *ClickHouseBacktestHistory) InitSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id String,
			segment LowCardinality(String),
			candidate_id String,
			current_id String,
			holdout_start DateTime64(3, 'UTC'),
			holdout_end DateTime64(3, 'UTC'),
			promote UInt8,
			outcome LowCardinality(String),
			reason String,
			active_version Int64,
			candidate_win_auc Float64,
			candidate_composite Float64,
			candidate String,
			current String,
			created_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (segment, created_at)
	`, h.table)
	if _, err := h.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("init backtest schema: %w", err)
	}
	return nil
}

// backtestRow is the flattened column form of a BacktestResult
type backtestRow struct {
	ID                 string
	Segment            string
	CandidateID        string
	CurrentID          string
	HoldoutStart       time.Time
	HoldoutEnd         time.Time
	Promote            uint8
	Outcome            string
	Reason             string
	ActiveVersion      int64
	CandidateWinAUC    float64
	CandidateComposite float64
	Candidate          string
	Current            string
	CreatedAt          time.Time
}

func toBacktestRow(r models.BacktestResult) (backtestRow, error) {
	candidate, err := json.Marshal(r.Candidate)
	if err != nil {
		return backtestRow{}, fmt.Errorf("encode candidate metrics: %w", err)
	}
	var current []byte
	if r.Current != nil {
		if current, err = json.Marshal(r.Current); err != nil {
			return backtestRow{}, fmt.Errorf("encode current metrics: %w", err)
		}
	}
	row := backtestRow{
		ID:                 r.ID.String(),
		Segment:            string(r.Segment),
		CandidateID:        r.CandidateID.String(),
		CurrentID:          r.CurrentID.String(),
		HoldoutStart:       r.HoldoutStart.UTC(),
		HoldoutEnd:         r.HoldoutEnd.UTC(),
		Outcome:            string(r.Outcome),
		Reason:             r.Reason,
		ActiveVersion:      r.ActiveVersion,
		CandidateWinAUC:    r.Candidate.WinAUC,
		CandidateComposite: r.Candidate.CompositeScore,
		Candidate:          string(candidate),
		Current:            string(current),
		CreatedAt:          r.CreatedAt.UTC(),
	}
	if r.Promote {
		row.Promote = 1
	}
	return row, nil
}

func (row backtestRow) result() (models.BacktestResult, error) {
	out := models.BacktestResult{
		Segment:       models.Segment(row.Segment),
		HoldoutStart:  row.HoldoutStart,
		HoldoutEnd:    row.HoldoutEnd,
		Promote:       row.Promote == 1,
		Outcome:       models.CycleOutcome(row.Outcome),
		Reason:        row.Reason,
		ActiveVersion: row.ActiveVersion,
		CreatedAt:     row.CreatedAt,
	}
	var err error
	if out.ID, err = uuid.Parse(row.ID); err != nil {
		return out, fmt.Errorf("parse id: %w", err)
	}
	// nil ids are stored as the zero uuid string and parse back to uuid.Nil
	if out.CandidateID, err = uuid.Parse(row.CandidateID); err != nil {
		return out, fmt.Errorf("parse candidate id: %w", err)
	}
	if out.CurrentID, err = uuid.Parse(row.CurrentID); err != nil {
		return out, fmt.Errorf("parse current id: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Candidate), &out.Candidate); err != nil {
		return out, fmt.Errorf("decode candidate metrics: %w", err)
	}
	if row.Current != "" {
		var current models.MetricSet
		if err := json.Unmarshal([]byte(row.Current), &current); err != nil {
			return out, fmt.Errorf("decode current metrics: %w", err)
		}
		out.Current = &current
	}
	return out, nil
}

// Append inserts one result
func (h *ClickHouseBacktestHistory) Append(ctx context.Context, result models.BacktestResult) error {
	row, err := toBacktestRow(result)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (
		id, segment, candidate_id, current_id, holdout_start, holdout_end, promote, outcome, reason,
		active_version, candidate_win_auc, candidate_composite, candidate, current, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, h.table)
	_, err = h.db.ExecContext(ctx, query,
		row.ID, row.Segment, row.CandidateID, row.CurrentID, row.HoldoutStart, row.HoldoutEnd, row.Promote,
		row.Outcome, row.Reason, row.ActiveVersion, row.CandidateWinAUC, row.CandidateComposite,
		row.Candidate, row.Current, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append backtest result: %w", err)
	}
	return nil
}

// Recent returns the newest results of a segment, newest first
func (h *ClickHouseBacktestHistory) Recent(ctx context.Context, segment models.Segment, limit int) ([]models.BacktestResult, error) {
	query := fmt.Sprintf(`
		SELECT id, segment, candidate_id, current_id, holdout_start, holdout_end, promote, outcome, reason,
			active_version, candidate_win_auc, candidate_composite, candidate, current, created_at
		FROM %s
		WHERE segment = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, h.table)
	rows, err := h.db.QueryContext(ctx, query, string(segment), limit)
	if err != nil {
		return nil, fmt.Errorf("query backtest results: %w", err)
	}
	defer rows.Close()

	var out []models.BacktestResult
	for rows.Next() {
		var row backtestRow
		if err := rows.Scan(
			&row.ID, &row.Segment, &row.CandidateID, &row.CurrentID, &row.HoldoutStart, &row.HoldoutEnd,
			&row.Promote, &row.Outcome, &row.Reason, &row.ActiveVersion, &row.CandidateWinAUC,
			&row.CandidateComposite, &row.Candidate, &row.Current, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan backtest result: %w", err)
		}
		result, err := row.result()
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}
