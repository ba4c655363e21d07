package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run describes one archived export.
type Run struct {
	ID           string    `json:"run_id"`
	Tick         int       `json:"tick"`
	SimTime      float64   `json:"sim_time"`
	ExportedAt   time.Time `json:"exported_at"`
	Version      string    `json:"version"`
	Filter       string    `json:"filter"`
	Units        string    `json:"units"`
	WarningCount int       `json:"warning_count"`
}

// Section is one archived report section in table form.
type Section struct {
	Kind   string     `json:"kind"`
	Title  string     `json:"title"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// RecordExport stores a run, its per-tick speed history and its sections
// in one transaction. Exporting the same run again replaces the earlier
// copy.
func (db *DB) RecordExport(ctx context.Context, run Run, speedHistory []float64, sections []Section) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	if err := recordRun(ctx, tx, run); err != nil {
		return err
	}
	if err := recordSpeedHistory(ctx, tx, run.ID, speedHistory); err != nil {
		return err
	}
	for i, sec := range sections {
		if err := recordSection(ctx, tx, run.ID, i, sec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	return nil
}

func recordRun(ctx context.Context, tx *sql.Tx, run Run) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear run %s: %w", run.ID, err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, tick, sim_time, exported_at, version, filter, units, warning_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Tick, run.SimTime, run.ExportedAt.Unix(), run.Version, run.Filter, run.Units, run.WarningCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

func recordSpeedHistory(ctx context.Context, tx *sql.Tx, runID string, history []float64) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO speed_history (run_id, tick, average_speed) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare speed history insert: %w", err)
	}
	defer stmt.Close()

	for i, v := range history {
		if _, err := stmt.ExecContext(ctx, runID, i+1, v); err != nil {
			return fmt.Errorf("failed to insert speed for tick %d: %w", i+1, err)
		}
	}
	return nil
}

func recordSection(ctx context.Context, tx *sql.Tx, runID string, position int, sec Section) error {
	header, err := json.Marshal(sec.Header)
	if err != nil {
		return fmt.Errorf("failed to encode %s header: %w", sec.Kind, err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO report_sections (run_id, position, kind, title, header)
		VALUES (?, ?, ?, ?, ?)`,
		runID, position, sec.Kind, sec.Title, string(header),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s section: %w", sec.Kind, err)
	}
	sectionID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read %s section id: %w", sec.Kind, err)
	}

	for i, row := range sec.Rows {
		cells, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode %s row %d: %w", sec.Kind, i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_rows (section_id, row_index, cells) VALUES (?, ?, ?)`,
			sectionID, i, string(cells),
		); err != nil {
			return fmt.Errorf("failed to insert %s row %d: %w", sec.Kind, i, err)
		}
	}
	return nil
}

// Runs returns every archived run, most recent export first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, tick, sim_time, exported_at, version, filter, units, warning_count
		FROM runs
		ORDER BY exported_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var exported int64
		if err := rows.Scan(&r.ID, &r.Tick, &r.SimTime, &exported, &r.Version, &r.Filter, &r.Units, &r.WarningCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.ExportedAt = time.Unix(exported, 0).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Sections returns a run's archived sections in export order.
func (db *DB) Sections(ctx context.Context, runID string) ([]Section, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT section_id, kind, title, header
		FROM report_sections
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections for %s: %w", runID, err)
	}

	var ids []int64
	var sections []Section
	for rows.Next() {
		var id int64
		var sec Section
		var header string
		if err := rows.Scan(&id, &sec.Kind, &sec.Title, &header); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if err := json.Unmarshal([]byte(header), &sec.Header); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode %s header: %w", sec.Kind, err)
		}
		ids = append(ids, id)
		sections = append(sections, sec)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i, id := range ids {
		sections[i].Rows, err = db.sectionRows(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return sections, nil
}

func (db *DB) sectionRows(ctx context.Context, sectionID int64) ([][]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT cells FROM report_rows WHERE section_id = ? ORDER BY row_index`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows for section %d: %w", sectionID, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var row []string
		if err := json.Unmarshal([]byte(cells), &row); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SpeedHistory returns a run's archived per-tick average speeds.
func (db *DB) SpeedHistory(ctx context.Context, runID string) ([]float64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT average_speed FROM speed_history WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query speed history for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan speed: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
