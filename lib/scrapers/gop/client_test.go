package gop

import (
	"context"
	"strings"
	"testing"
	"time"

	"cpim-backend/lib/scrapers/gop/goptest"
	"cpim-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const (
	testUser = "cpim"
	testPass = "secreto"
)

func setup(t testing.TB) (*goptest.Server, func()) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/gop")
	srv := goptest.New(testUser, testPass)
	return srv, func() {
		srv.Close()
		cleanup()
	}
}

func newTestClient(t testing.TB, srv *goptest.Server, password string) *Client {
	client, err := NewClient(context.Background(), Options{
		BaseUrl:  srv.URL,
		Username: testUser,
		Password: password,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	t.Cleanup(cancel)
	return ctx
}

func TestLogin(t *testing.T) {
	srv, cleanup := setup(t)
	defer cleanup()

	client := newTestClient(t, srv, testPass)
	err := client.Login(testContext(t))
	require.NoError(t, err)
	require.Equal(t, 1, srv.LoginAttempts())
}

func TestLoginBadCredentials(t *testing.T) {
	srv, cleanup := setup(t)
	defer cleanup()

	client := newTestClient(t, srv, "wrong")
	err := client.Login(testContext(t))

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Contains(t, authErr.Message, "incorrectos")
}

func TestLoginFieldsNotFound(t *testing.T) {
	srv, cleanup := setup(t)
	defer cleanup()
	srv.BrokenLoginForm = true

	client := newTestClient(t, srv, testPass)
	err := client.Login(testContext(t))

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Contains(t, authErr.Message, "username")
}

func TestReauthOnExpiredSession(t *testing.T) {
	srv, cleanup := setup(t)
	defer cleanup()
	srv.Cases = []goptest.Case{
		{NroSistema: "100", Expediente: "E-100", InMyTrays: true},
	}

	ctx := testContext(t)
	client := newTestClient(t, srv, testPass)
	require.NoError(t, client.Login(ctx))

	rows, err := client.CollectAll(ctx, ViewMyTrays)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// the portal silently bounces expired sessions back to login,
	// the client should recover without the caller noticing
	srv.ExpireSessions()
	rows, err = client.CollectAll(ctx, ViewMyTrays)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2, srv.LoginAttempts())
}

func TestCollectAllPagination(t *testing.T) {
	srv, cleanup := setup(t)
	defer cleanup()
	srv.MyTraysPageSize = 2
	srv.Cases = []goptest.Case{
		{NroSistema: "1", Expediente: "E-1", Estado: "En curso", Profesional: "Juan Perez", Nomenclatura: "A1", Bandeja: "Visado Previo", FechaEntrada: "2024-03-01", Usuario: "Fernando Imlauer", InMyTrays: true},
		{NroSistema: "2", Expediente: "E-2", InMyTrays: true},
		{NroSistema: "3", Expediente: "E-3", InMyTrays: true},
		{NroSistema: "4", Expediente: "E-4", InMyTrays: true},
		{NroSistema: "5", Expediente: "E-5", InMyTrays: true},
	}

	ctx := testContext(t)
	client := newTestClient(t, srv, testPass)
	require.NoError(t, client.Login(ctx))

	rows, err := client.CollectAll(ctx, ViewMyTrays)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	first := rows[0]
	require.Equal(t, "1", first.NroSistema)
	require.Equal(t, "E-1", first.Expediente)
	require.Equal(t, "En curso", first.Estado)
	require.Equal(t, "Juan Perez", first.Profesional)
	require.Equal(t, "Visado Previo", first.BandejaActual)
	require.Equal(t, "2024-03-01", first.FechaEntradaBandeja)
	require.Equal(t, "Fernando Imlauer", first.UsuarioAsignado)
	require.Equal(t, ViewMyTrays, first.Source)
}

func TestSearchFiltered(t *testing.T) {
	srv, cleanup := setup(t)
	defer cleanup()
	srv.Cases = []goptest.Case{
		{NroSistema: "12345", Expediente: "E-12345", Bandeja: "Mesa de Entradas", FechaEntrada: "2024-04-10", Usuario: "Otro Usuario", InAllFilings: true},
		// the portal filter matches substrings, the client must not
		{NroSistema: "123456", Expediente: "E-123456", InAllFilings: true},
	}

	ctx := testContext(t)
	client := newTestClient(t, srv, testPass)
	require.NoError(t, client.Login(ctx))

	rows, err := client.SearchFiltered(ctx, "12345")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "12345", rows[0].NroSistema)
	require.Equal(t, ViewAllFilings, rows[0].Source)
	require.Equal(t, "2024-04-10", rows[0].FechaEntradaBandeja)
	require.Equal(t, "Otro Usuario", rows[0].UsuarioAsignado)
	require.Equal(t, "2023-01-01", rows[0].FechaIngreso)
}

func TestSearchFilteredNoInput(t *testing.T) {
	srv, cleanup := setup(t)
	defer cleanup()
	srv.NoFilterInput = true
	srv.Cases = []goptest.Case{
		{NroSistema: "12345", Expediente: "E-12345", InAllFilings: true},
	}

	ctx := testContext(t)
	client := newTestClient(t, srv, testPass)
	require.NoError(t, client.Login(ctx))

	_, err := client.SearchFiltered(ctx, "12345")
	require.ErrorIs(t, err, ErrNoFilterInput)
}

func TestExtractRowsSkipsAndCaps(t *testing.T) {
	html := `<table><tbody>
		<tr><th>cabecera</th></tr>
		<tr><td>solo</td><td>cuatro</td><td>celdas</td><td>aqui</td></tr>
		<tr><td>1</td><td>E-1</td><td>s</td><td>p</td><td>n</td><td>b</td><td>f</td><td>u</td></tr>
		<tr><td>2</td><td>E-2</td><td>s</td><td>p</td><td>n</td><td>b</td><td>f</td><td>u</td></tr>
		<tr><td>3</td><td>E-3</td><td>s</td><td>p</td><td>n</td><td>b</td><td>f</td><td>u</td></tr>
	</tbody></table>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	sel := DefaultSelectors()
	rows := ExtractRows(doc, ViewMyTrays, sel)
	require.Len(t, rows, 3)

	sel.MaxRowsPerPage = 3
	rows = ExtractRows(doc, ViewMyTrays, sel)
	// the cap counts scanned rows, data or not
	require.Len(t, rows, 1)
}
