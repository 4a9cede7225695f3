package gopsync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// dbtx lets store queries run against either the pool or the run's
// transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	// resolved once at startup instead of probing per call
	historyAvailable bool
}

func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// ResolveCapabilities checks optional schema features once so the sync
// path never has to probe. Currently the only optional feature is the
// queue history table, which may be absent prior to its migration.
func (s *Store) ResolveCapabilities(ctx context.Context) error {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'historial_bandejas'`,
	).Scan(&count)
	if err != nil {
		return err
	}
	s.historyAvailable = count > 0
	if !s.historyAvailable {
		slog.Warn("historial_bandejas table not found, queue history tracking disabled")
	}
	return nil
}

func (s *Store) HistoryAvailable() bool {
	return s.historyAvailable
}

// VerifyQueueColumns asserts the per-queue destination columns exist on
// expedientes. A missing column is a deployment problem, callers abort
// the whole run before writing anything.
func (s *Store) VerifyQueueColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('expedientes')`)
	if err != nil {
		return err
	}
	defer rows.Close()

	existing := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, b := range Bandejas {
		for _, col := range queueColumns(b) {
			if !existing[col] {
				missing = append(missing, col)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("expedientes is missing queue columns (run migrations): %s", strings.Join(missing, ", "))
	}
	return nil
}

func queueColumns(b Bandeja) [3]string {
	return [3]string{
		fmt.Sprintf("gop_bandeja_%s", b),
		fmt.Sprintf("gop_usuario_%s", b),
		fmt.Sprintf("gop_fecha_%s", b),
	}
}

type PendingCase struct {
	ID        int64
	GopNumero string
}

// PendingCases returns every case eligible for portal sync: digital
// format, not finalized, with a non-blank tracking number.
func (s *Store) PendingCases(ctx context.Context) ([]PendingCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gop_numero FROM expedientes
		WHERE formato = 'digital'
		  AND finalizado = 0
		  AND gop_numero IS NOT NULL
		  AND trim(gop_numero) <> ''
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingCase
	for rows.Next() {
		var c PendingCase
		if err := rows.Scan(&c.ID, &c.GopNumero); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindDigitalByGopNumero resolves a tracking number to a local digital
// case. Matches in any other format are reported as sql.ErrNoRows, a
// paper case must never be updated by sync.
func (s *Store) FindDigitalByGopNumero(ctx context.Context, q dbtx, numero string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT id FROM expedientes
		WHERE gop_numero = ? AND formato = 'digital'
		ORDER BY id LIMIT 1
	`, numero).Scan(&id)
	return id, err
}

// ClearQueueFields nulls all four per-queue field groups ahead of a
// fresh apply.
func (s *Store) ClearQueueFields(ctx context.Context, q dbtx, caseID int64) error {
	var sets []string
	for _, b := range Bandejas {
		for _, col := range queueColumns(b) {
			sets = append(sets, fmt.Sprintf("%s = NULL", col))
		}
	}
	query := fmt.Sprintf("UPDATE expedientes SET %s WHERE id = ?", strings.Join(sets, ", "))
	_, err := q.ExecContext(ctx, query, caseID)
	return err
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

// SetQueueFields writes one queue's occupancy snapshot plus the sync
// timestamp. Column names derive from the Bandeja constants, never from
// scraped input.
func (s *Store) SetQueueFields(ctx context.Context, q dbtx, caseID int64, b Bandeja, nombre, usuario string, fecha *time.Time, syncTime time.Time) error {
	cols := queueColumns(b)
	query := fmt.Sprintf(`
		UPDATE expedientes
		SET %s = ?, %s = ?, %s = ?, gop_ultima_sincronizacion = ?, updated_at = ?
		WHERE id = ?
	`, cols[0], cols[1], cols[2])
	_, err := q.ExecContext(
		ctx, query,
		nombre, usuario, nullDate(fecha),
		syncTime.Format(time.RFC3339), syncTime.Format(time.RFC3339),
		caseID,
	)
	return err
}

// SetLegacyFields keeps the pre-queue single-snapshot columns in step,
// populated from the first record encountered for the case.
func (s *Store) SetLegacyFields(ctx context.Context, q dbtx, caseID int64, bandeja, usuario, estado string, fecha *time.Time, syncTime time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE expedientes
		SET gop_bandeja_actual = ?,
		    gop_usuario_asignado = ?,
		    gop_estado = ?,
		    gop_fecha_entrada = ?,
		    gop_ultima_sincronizacion = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		truncate(bandeja, 200), truncate(usuario, 200), truncate(estado, 100),
		nullDate(fecha),
		syncTime.Format(time.RFC3339), syncTime.Format(time.RFC3339),
		caseID,
	)
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
