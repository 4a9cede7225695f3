package gopsync

import (
	"context"
	"log/slog"
	"time"
)

// Occupancy is a case's presence in one queue as observed by the
// current run. Fecha is the scraped entered-queue date, nil when the
// portal rendered nothing parseable.
type Occupancy struct {
	Bandeja Bandeja
	Nombre  string
	Usuario string
	Fecha   *time.Time
}

type openInterval struct {
	id          int64
	nombre      string
	usuario     string
	fechaInicio time.Time
}

func (s *Store) openIntervals(ctx context.Context, q dbtx, caseID int64) (map[Bandeja]openInterval, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, bandeja_tipo, coalesce(bandeja_nombre, ''), coalesce(usuario_asignado, ''), fecha_inicio
		FROM historial_bandejas
		WHERE expediente_id = ? AND fecha_fin IS NULL
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[Bandeja]openInterval{}
	for rows.Next() {
		var iv openInterval
		var tipo, inicio string
		if err := rows.Scan(&iv.id, &tipo, &iv.nombre, &iv.usuario, &inicio); err != nil {
			return nil, err
		}
		iv.fechaInicio, _ = time.Parse(dateLayout, inicio)
		out[Bandeja(tipo)] = iv
	}
	return out, rows.Err()
}

func (s *Store) closeInterval(ctx context.Context, q dbtx, iv openInterval, today time.Time) error {
	dias := int(today.Sub(iv.fechaInicio).Hours() / 24)
	if dias < 0 {
		dias = 0
	}
	_, err := q.ExecContext(ctx, `
		UPDATE historial_bandejas
		SET fecha_fin = ?, dias_en_bandeja = ?, updated_at = ?
		WHERE id = ?
	`, today.Format(dateLayout), dias, time.Now().UTC().Format(time.RFC3339), iv.id)
	return err
}

func (s *Store) refreshInterval(ctx context.Context, q dbtx, id int64, nombre, usuario string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE historial_bandejas
		SET bandeja_nombre = ?, usuario_asignado = ?, updated_at = ?
		WHERE id = ?
	`, nombre, usuario, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (s *Store) insertInterval(ctx context.Context, q dbtx, caseID int64, occ Occupancy, inicio time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := q.ExecContext(ctx, `
		INSERT INTO historial_bandejas
			(expediente_id, bandeja_tipo, bandeja_nombre, usuario_asignado, fecha_inicio, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, caseID, string(occ.Bandeja), occ.Nombre, occ.Usuario, inicio.Format(dateLayout), now, now)
	return err
}

// UpdateHistorial reconciles the queue-occupancy ledger for one case
// against the occupancy the run just observed:
//
//   - an open interval for a queue the case left is closed today, with
//     its duration in days;
//   - an open interval whose label or occupant changed is refreshed in
//     place, a detail change is not a queue transition;
//   - a queue without an open interval gets a new one, starting on the
//     scraped date when present, today otherwise.
//
// At most one open interval exists per (case, queue). When the history
// table is unavailable the whole update degrades to a logged no-op,
// sync must keep working without history tracking.
func (s *Store) UpdateHistorial(ctx context.Context, q dbtx, caseID int64, occupancy []Occupancy, today time.Time) error {
	if !s.historyAvailable {
		slog.DebugContext(ctx, "skipping queue history update, table unavailable", "expediente_id", caseID)
		return nil
	}

	open, err := s.openIntervals(ctx, q, caseID)
	if err != nil {
		return err
	}

	current := map[Bandeja]Occupancy{}
	for _, occ := range occupancy {
		current[occ.Bandeja] = occ
	}

	for b, iv := range open {
		if _, stillThere := current[b]; stillThere {
			continue
		}
		if err := s.closeInterval(ctx, q, iv, today); err != nil {
			return err
		}
	}

	for _, b := range Bandejas {
		occ, ok := current[b]
		if !ok {
			continue
		}
		iv, hasOpen := open[b]
		if hasOpen {
			if iv.nombre != occ.Nombre || iv.usuario != occ.Usuario {
				if err := s.refreshInterval(ctx, q, iv.id, occ.Nombre, occ.Usuario); err != nil {
					return err
				}
			}
			continue
		}
		inicio := today
		if occ.Fecha != nil {
			inicio = *occ.Fecha
		}
		if err := s.insertInterval(ctx, q, caseID, occ, inicio); err != nil {
			return err
		}
	}
	return nil
}
