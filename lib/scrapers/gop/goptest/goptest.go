// Package goptest fakes the GOP portal for tests: a login form with a
// CSRF token, session cookies, the paginated my-trays grid and the
// filterable all-filings grid.
package goptest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

const (
	LoginPath      = "/frontend/web/site/login"
	MyTraysPath    = "/frontend/web/formality/index"
	AllFilingsPath = "/frontend/web/formality/index-all"

	csrfToken  = "test-csrf-token"
	filterName = "FormalitySearch[nro_sistema]"
)

// Case is one portal case file, rendered as a grid row in the views
// that carry it.
type Case struct {
	NroSistema   string
	Expediente   string
	Estado       string
	Profesional  string
	Nomenclatura string
	Bandeja      string
	FechaEntrada string
	Usuario      string

	InMyTrays    bool
	InAllFilings bool
}

type Server struct {
	*httptest.Server

	Username string
	Password string
	Cases    []Case

	// rows per my-trays page, zero means everything on one page
	MyTraysPageSize int
	// render the all-filings grid without its filter row
	NoFilterInput bool
	// render the login page without any form inputs
	BrokenLoginForm bool

	mu            sync.Mutex
	sessions      map[string]bool
	loginAttempts int
	nextSession   int
}

func New(username, password string) *Server {
	s := &Server{
		Username: username,
		Password: password,
		sessions: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(LoginPath, s.handleLogin)
	mux.HandleFunc(MyTraysPath, s.handleMyTrays)
	mux.HandleFunc(AllFilingsPath, s.handleAllFilings)
	mux.HandleFunc("/frontend/web/site/index", func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		fmt.Fprint(w, "<html><body><h1>Inicio</h1></body></html>")
	})

	s.Server = httptest.NewServer(mux)
	return s
}

// ExpireSessions invalidates every session so the next protected fetch
// bounces back to the login page.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]bool{}
}

func (s *Server) LoginAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginAttempts
}

func (s *Server) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie("sess")
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[cookie.Value]
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.renderLogin(w, "")
		return
	}

	s.mu.Lock()
	s.loginAttempts++
	s.mu.Unlock()

	_ = r.ParseForm()
	if r.PostFormValue("_csrf-frontend") != csrfToken {
		s.renderLogin(w, "Token inválido.")
		return
	}
	if r.PostFormValue("LoginForm[username]") != s.Username ||
		r.PostFormValue("LoginForm[password]") != s.Password {
		s.renderLogin(w, "Usuario o contraseña incorrectos.")
		return
	}

	s.mu.Lock()
	s.nextSession++
	session := fmt.Sprintf("sess-%d", s.nextSession)
	s.sessions[session] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "sess", Value: session, Path: "/"})
	http.Redirect(w, r, "/frontend/web/site/index", http.StatusFound)
}

func (s *Server) renderLogin(w http.ResponseWriter, errorText string) {
	var b strings.Builder
	b.WriteString("<html><body>")
	if errorText != "" {
		fmt.Fprintf(&b, `<div class="alert-danger">%s</div>`, errorText)
	}
	b.WriteString(`<form action="` + LoginPath + `" method="post">`)
	fmt.Fprintf(&b, `<input type="hidden" name="_csrf-frontend" value="%s">`, csrfToken)
	if !s.BrokenLoginForm {
		b.WriteString(`<input type="text" id="loginform-username" name="LoginForm[username]">`)
		b.WriteString(`<input type="password" id="loginform-password" name="LoginForm[password]">`)
	}
	b.WriteString(`<button type="submit" class="btn-primary">Ingresar</button>`)
	b.WriteString(`</form></body></html>`)
	fmt.Fprint(w, b.String())
}

func (s *Server) handleMyTrays(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}

	var rows []Case
	for _, c := range s.Cases {
		if c.InMyTrays {
			rows = append(rows, c)
		}
	}

	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := s.MyTraysPageSize
	if pageSize <= 0 {
		pageSize = len(rows)
	}
	totalPages := 1
	if pageSize > 0 && len(rows) > 0 {
		totalPages = (len(rows) + pageSize - 1) / pageSize
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(rows) {
		start = len(rows)
	}
	if end > len(rows) {
		end = len(rows)
	}

	var b strings.Builder
	b.WriteString("<html><body><table><thead><tr><th>Nro</th></tr></thead><tbody>")
	b.WriteString("<tr><th>encabezado de grupo</th></tr>")
	for _, c := range rows[start:end] {
		fmt.Fprintf(
			&b,
			"<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			c.NroSistema, c.Expediente, c.Estado, c.Profesional,
			c.Nomenclatura, c.Bandeja, c.FechaEntrada, c.Usuario,
		)
	}
	b.WriteString("</tbody></table>")

	b.WriteString(`<ul class="pagination">`)
	fmt.Fprintf(&b, `<li class="active"><a>%d</a></li>`, page)
	if page < totalPages {
		fmt.Fprintf(&b, `<li class="next"><a rel="next" href="%s?page=%d">&raquo;</a></li>`, MyTraysPath, page+1)
	} else {
		b.WriteString(`<li class="next disabled"><a>&raquo;</a></li>`)
	}
	b.WriteString(`</ul></body></html>`)
	fmt.Fprint(w, b.String())
}

func (s *Server) handleAllFilings(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}

	filter := r.URL.Query().Get(filterName)

	var b strings.Builder
	b.WriteString("<html><body><table><thead><tr><th>Nro</th></tr></thead><tbody>")
	if !s.NoFilterInput {
		fmt.Fprintf(&b, `<tr class="filters"><td><input type="text" name="%s" value="%s"></td></tr>`, filterName, filter)
	}
	for _, c := range s.Cases {
		if !c.InAllFilings {
			continue
		}
		if filter != "" && !strings.Contains(c.NroSistema, filter) {
			continue
		}
		// extra leading fecha-ingreso column shifts the trailing pair
		fmt.Fprintf(
			&b,
			"<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			c.NroSistema, c.Expediente, c.Estado, c.Profesional,
			c.Nomenclatura, c.Bandeja, "2023-01-01", c.FechaEntrada, c.Usuario,
		)
	}
	b.WriteString("</tbody></table></body></html>")
	fmt.Fprint(w, b.String())
}
