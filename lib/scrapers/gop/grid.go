package gop

import (
	"github.com/PuerkitoBio/goquery"

	"cpim-backend/lib/htmlutil"
)

// Row is one scraped grid row. Fields are free text exactly as the
// portal rendered them, date parsing happens downstream.
type Row struct {
	NroSistema    string
	Expediente    string
	Estado        string
	Profesional   string
	Nomenclatura  string
	BandejaActual string
	// only rendered by the all-filings layout (its extra column)
	FechaIngreso        string
	FechaEntradaBandeja string
	UsuarioAsignado     string
	Source              View
}

// ExtractRows pulls fixed-position cells out of a results grid already
// present in the document. Rows with fewer than 6 cells are headers or
// spacers and are skipped; the row cap bounds cost on unexpectedly
// large grids.
func ExtractRows(doc *goquery.Document, view View, sel Selectors) []Row {
	offsets := sel.offsets(view)

	var out []Row
	doc.Find(sel.TableRows).EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if i >= sel.MaxRowsPerPage {
			return false
		}

		cells := tr.Find("td")
		n := cells.Length()
		if n < 6 {
			return true
		}
		cell := func(j int) string {
			if j < 0 || j >= n {
				return ""
			}
			return htmlutil.SelectionText(cells.Eq(j))
		}

		row := Row{
			NroSistema:          cell(0),
			Expediente:          cell(1),
			Estado:              cell(2),
			Profesional:         cell(3),
			Nomenclatura:        cell(4),
			BandejaActual:       cell(5),
			FechaEntradaBandeja: cell(offsets.FechaBandeja),
			UsuarioAsignado:     cell(offsets.UsuarioAsignado),
			Source:              view,
		}
		if view == ViewAllFilings {
			row.FechaIngreso = cell(6)
		}

		if row.NroSistema == "" && row.Expediente == "" {
			return true
		}
		out = append(out, row)
		return true
	})
	return out
}
