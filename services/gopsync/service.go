// Package gopsync reconciles locally tracked expedientes against the
// municipal GOP portal: it scrapes both case grids, classifies every
// hit into one of four work queues, updates the per-queue columns on
// expedientes and maintains the queue-occupancy history ledger.
package gopsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cpim-backend/lib/scrapers/gop"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/gopsync")

// Portal is the slice of the scraper client the engine drives. A run
// gets a fresh session from its factory, sessions are single use.
type Portal interface {
	Login(ctx context.Context) error
	CollectAll(ctx context.Context, view gop.View) ([]gop.Row, error)
	SearchFiltered(ctx context.Context, nroSistema string) ([]gop.Row, error)
}

type PortalFactory func(ctx context.Context) (Portal, error)

// Progress is the snapshot handed to the reporter after every
// processed case and served by the progress endpoint.
type Progress struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Reporter receives progress synchronously from within the run.
type Reporter func(Progress)

// RunStats aggregates one run's outcome. It is returned to the caller
// only, never persisted.
type RunStats struct {
	TotalPendientes          int
	ExpedientesActualizados  int
	ExpedientesNoEncontrados int
	PorBandeja               map[Bandeja]int
	Errores                  []string
}

type Service struct {
	db        *sql.DB
	store     *Store
	newPortal PortalFactory
}

func NewService(database *sql.DB, store *Store, newPortal PortalFactory) *Service {
	return &Service{
		db:        database,
		store:     store,
		newPortal: newPortal,
	}
}

// RunSync executes one full reconciliation run, sequentially: collect
// pending cases, verify destination schema, scan the cheap my-trays
// grid for all of them at once, chase leftovers one by one through the
// all-filings filter, then apply everything in a single transaction.
// Session setup and schema failures are fatal; anything that breaks a
// single case is recorded in Errores and the run continues.
func (s *Service) RunSync(ctx context.Context, report Reporter) (RunStats, error) {
	ctx, span := tracer.Start(ctx, "service:RunSync")
	defer span.End()

	if report == nil {
		report = func(Progress) {}
	}
	stats := RunStats{PorBandeja: map[Bandeja]int{}}

	pending, err := s.store.PendingCases(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to collect pending cases")
		return stats, err
	}
	stats.TotalPendientes = len(pending)
	span.SetAttributes(attribute.Int("pending", len(pending)))

	if len(pending) == 0 {
		report(Progress{Status: StatusDone, Message: "no digital cases pending sync"})
		return stats, nil
	}

	err = s.store.VerifyQueueColumns(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "destination schema missing")
		return stats, err
	}

	portal, err := s.newPortal(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build portal session")
		return stats, err
	}
	err = portal.Login(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return stats, err
	}

	// phase A: one pass over the whole my-trays grid covers every
	// pending number it contains
	pendingSet := map[string]bool{}
	var order []string
	for _, c := range pending {
		if pendingSet[c.GopNumero] {
			continue
		}
		pendingSet[c.GopNumero] = true
		order = append(order, c.GopNumero)
	}

	trayRows, err := portal.CollectAll(ctx, gop.ViewMyTrays)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "my-trays scan failed")
		return stats, err
	}
	found := map[string][]gop.Row{}
	for _, row := range trayRows {
		if pendingSet[row.NroSistema] {
			found[row.NroSistema] = append(found[row.NroSistema], row)
		}
	}
	slog.InfoContext(ctx, "my-trays scan complete", "rows", len(trayRows), "matched", len(found))

	// phase B: each leftover gets one filtered all-filings lookup
	for _, numero := range order {
		if len(found[numero]) > 0 {
			continue
		}
		rows, err := portal.SearchFiltered(ctx, numero)
		if errors.Is(err, gop.ErrNoFilterInput) {
			stats.Errores = append(stats.Errores, fmt.Sprintf("GOP %s: not found by filter: %v", numero, err))
			continue
		}
		if err != nil {
			stats.Errores = append(stats.Errores, fmt.Sprintf("GOP %s: filter search failed: %v", numero, err))
			continue
		}
		if len(rows) > 0 {
			found[numero] = rows[:1]
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to begin transaction")
		return stats, err
	}
	defer tx.Rollback()

	today := time.Now()
	processed := 0
	for _, numero := range order {
		updated, err := s.applyCase(ctx, tx, numero, found[numero], today, &stats)
		processed++
		if err != nil {
			stats.Errores = append(stats.Errores, fmt.Sprintf("GOP %s: %v", numero, err))
			slog.WarnContext(ctx, "failed to apply case", "gop_numero", numero, "err", err)
		} else if updated {
			stats.ExpedientesActualizados++
		} else {
			stats.ExpedientesNoEncontrados++
		}

		report(Progress{
			Status:    StatusRunning,
			Message:   fmt.Sprintf("procesado GOP %s", numero),
			Processed: processed,
			Total:     len(order),
			Succeeded: stats.ExpedientesActualizados,
			Failed:    processed - stats.ExpedientesActualizados,
		})
	}

	err = tx.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return stats, fmt.Errorf("sync commit failed, nothing persisted: %w", err)
	}

	slog.InfoContext(
		ctx, "sync run complete",
		"total", stats.TotalPendientes,
		"actualizados", stats.ExpedientesActualizados,
		"no_encontrados", stats.ExpedientesNoEncontrados,
		"errores", len(stats.Errores),
	)
	return stats, nil
}

// applyCase writes one tracking number's scraped records onto its local
// case. It reports updated=false (with no error) when nothing matched
// locally, which the caller counts as not found.
func (s *Service) applyCase(ctx context.Context, tx *sql.Tx, numero string, rows []gop.Row, today time.Time, stats *RunStats) (bool, error) {
	if len(rows) == 0 {
		return false, nil
	}

	caseID, err := s.store.FindDigitalByGopNumero(ctx, tx, numero)
	if errors.Is(err, sql.ErrNoRows) {
		// includes paper-format matches, which are never updated
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = s.store.ClearQueueFields(ctx, tx, caseID)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()

	// legacy single-queue columns take the first record encountered;
	// when both views hit the same number this is last-write-wins by
	// phase order, flagged for product clarification
	first := rows[0]
	var legacyFecha *time.Time
	if f, ok := ParseFecha(first.FechaEntradaBandeja); ok {
		legacyFecha = &f
	}
	err = s.store.SetLegacyFields(ctx, tx, caseID, first.BandejaActual, first.UsuarioAsignado, first.Estado, legacyFecha, now)
	if err != nil {
		return false, err
	}

	seen := map[Bandeja]bool{}
	var occupancy []Occupancy
	for _, row := range rows {
		b := Classify(row.UsuarioAsignado, row.Source)
		var fecha *time.Time
		if f, ok := ParseFecha(row.FechaEntradaBandeja); ok {
			fecha = &f
		}
		err = s.store.SetQueueFields(ctx, tx, caseID, b, row.BandejaActual, row.UsuarioAsignado, fecha, now)
		if err != nil {
			return false, err
		}
		stats.PorBandeja[b]++

		occ := Occupancy{Bandeja: b, Nombre: row.BandejaActual, Usuario: row.UsuarioAsignado, Fecha: fecha}
		if seen[b] {
			// several records landing in one queue collapse to the
			// last one, same as the column writes above
			for i := range occupancy {
				if occupancy[i].Bandeja == b {
					occupancy[i] = occ
				}
			}
			continue
		}
		seen[b] = true
		occupancy = append(occupancy, occ)
	}

	err = s.store.UpdateHistorial(ctx, tx, caseID, occupancy, today)
	if err != nil {
		return false, err
	}
	return true, nil
}
