package gop

// View identifies which portal grid a scraped row came from. The
// distinction matters downstream: all-filings hits are force-classified
// into the catch-all queue no matter who they are assigned to.
type View string

const (
	ViewMyTrays    View = "mis_bandejas"
	ViewAllFilings View = "todos_los_tramites"
)

// ColumnOffsets locates the two view-dependent grid columns. The
// all-filings grid carries an extra leading column, shifting both.
type ColumnOffsets struct {
	FechaBandeja    int
	UsuarioAsignado int
}

// Selectors describes the portal markup. None of it is contractually
// stable, so every probe list and offset can be overridden from config.
// Probe lists are tried in order, first hit wins.
type Selectors struct {
	LoginPath      string
	MyTraysPath    string
	AllFilingsPath string

	// substring that marks a URL as the login page, used both to
	// detect login failure and silent re-auth redirects
	LoginMarker string

	UserInputs   []string
	PassInputs   []string
	LoginErrors  []string
	HiddenInputs string

	TableRows  string
	NextPage   []string
	ActivePage string

	FilterInputs []string

	MyTrays    ColumnOffsets
	AllFilings ColumnOffsets

	// bounds on unexpectedly large grids
	MaxRowsPerPage int
	MaxPages       int
}

func DefaultSelectors() Selectors {
	return Selectors{
		LoginPath:      "/frontend/web/site/login",
		MyTraysPath:    "/frontend/web/formality/index",
		AllFilingsPath: "/frontend/web/formality/index-all",

		LoginMarker: "login",

		UserInputs: []string{
			`input[name="LoginForm[username]"]`,
			`input#loginform-username`,
			`input[name="username"]`,
			`input[type="text"]`,
		},
		PassInputs: []string{
			`input[name="LoginForm[password]"]`,
			`input#loginform-password`,
			`input[name="password"]`,
			`input[type="password"]`,
		},
		LoginErrors: []string{
			`.alert-danger`,
			`.help-block-error`,
			`.invalid-feedback`,
		},
		HiddenInputs: `form input[type="hidden"]`,

		TableRows:  `table tbody tr`,
		NextPage: []string{
			`ul.pagination li:not(.disabled) a[rel="next"]`,
			`ul.pagination li.next:not(.disabled) a`,
			`a[aria-label*="Siguiente"]`,
		},
		ActivePage: `ul.pagination li.active`,

		FilterInputs: []string{
			`tr.filters input[name*="nro_sistema"]`,
			`input[name^="FormalitySearch"]`,
			`.grid-view tr.filters input[type="text"]`,
			`tr.filters input[type="text"]`,
		},

		MyTrays:    ColumnOffsets{FechaBandeja: 6, UsuarioAsignado: 7},
		AllFilings: ColumnOffsets{FechaBandeja: 7, UsuarioAsignado: 8},

		MaxRowsPerPage: 200,
		MaxPages:       100,
	}
}

func (s Selectors) offsets(view View) ColumnOffsets {
	if view == ViewAllFilings {
		return s.AllFilings
	}
	return s.MyTrays
}
