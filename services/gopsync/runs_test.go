package gopsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cpim-backend/lib/scrapers/gop"

	"github.com/stretchr/testify/require"
)

// stubPortal serves canned rows and can hold a run open until the test
// releases it.
type stubPortal struct {
	release chan struct{}
	rows    []gop.Row
}

func (p *stubPortal) Login(ctx context.Context) error { return nil }

func (p *stubPortal) CollectAll(ctx context.Context, view gop.View) ([]gop.Row, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.release:
	}
	return p.rows, nil
}

func (p *stubPortal) SearchFiltered(ctx context.Context, nroSistema string) ([]gop.Row, error) {
	return nil, nil
}

func newTestRunner(t testing.TB, portal Portal) (*Runner, *MemoryRunStore) {
	database, store := newTestDB(t)
	insertExpediente(t, database, "1", "digital")

	service := NewService(database, store, func(ctx context.Context) (Portal, error) {
		if portal == nil {
			return nil, errors.New("portal down")
		}
		return portal, nil
	})

	runs := NewMemoryRunStore()
	runner := NewRunner(service, runs)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runner.Start(ctx)
	return runner, runs
}

func TestRunnerSerializesRuns(t *testing.T) {
	portal := &stubPortal{
		release: make(chan struct{}),
		rows: []gop.Row{{
			NroSistema: "1", Expediente: "E-1", BandejaActual: "Visado Previo",
			UsuarioAsignado: "onetto", Source: gop.ViewMyTrays,
		}},
	}
	runner, runs := newTestRunner(t, portal)

	first, started := runner.Trigger()
	require.True(t, started)
	require.NotEmpty(t, first)

	// while the first run is in flight a trigger returns it unchanged
	second, started := runner.Trigger()
	require.False(t, started)
	require.Equal(t, first, second)

	close(portal.release)
	require.Eventually(t, func() bool {
		p, ok := runs.Get(first)
		return ok && p.Status == StatusDone
	}, time.Second*5, time.Millisecond*10)

	p, _ := runs.Get(first)
	require.Contains(t, p.Message, "actualizados 1")

	var third string
	require.Eventually(t, func() bool {
		id, started := runner.Trigger()
		third = id
		return started
	}, time.Second*5, time.Millisecond*10)
	require.NotEqual(t, first, third)
}

func TestRunnerReportsFailure(t *testing.T) {
	runner, runs := newTestRunner(t, nil)

	runID, started := runner.Trigger()
	require.True(t, started)

	require.Eventually(t, func() bool {
		p, ok := runs.Get(runID)
		return ok && p.Status == StatusFailed
	}, time.Second*5, time.Millisecond*10)

	p, _ := runs.Get(runID)
	require.Contains(t, p.Message, "portal down")
}

func TestHTTPHandler(t *testing.T) {
	portal := &stubPortal{release: make(chan struct{})}
	close(portal.release)
	runner, runs := newTestRunner(t, portal)

	mux := http.NewServeMux()
	handler := NewHTTPHandler(runner, runs)
	mux.Handle("/gop/sync/runs", handler)
	mux.Handle("/gop/sync/runs/", handler)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	res, err := http.Post(ts.URL+"/gop/sync/runs", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	var trigger struct {
		RunID   string `json:"run_id"`
		Started bool   `json:"started"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&trigger))
	require.True(t, trigger.Started)
	require.NotEmpty(t, trigger.RunID)

	require.Eventually(t, func() bool {
		res, err := http.Get(ts.URL + "/gop/sync/runs/" + trigger.RunID)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return false
		}
		var p Progress
		if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
			return false
		}
		return p.Status == StatusDone
	}, time.Second*5, time.Millisecond*20)

	res, err = http.Get(ts.URL + "/gop/sync/runs/desconocido")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}
