package gopsync

import (
	"strings"

	"cpim-backend/lib/scrapers/gop"
)

// Bandeja is one of the four organizational work queues a case can
// occupy. The value doubles as the column-name suffix on expedientes.
type Bandeja string

const (
	BandejaImlauer     Bandeja = "imlauer"
	BandejaOnetto      Bandeja = "onetto"
	BandejaCpim        Bandeja = "cpim"
	BandejaProfesional Bandeja = "profesional"
)

// Bandejas lists every queue in classification order, the catch-all last.
var Bandejas = []Bandeja{BandejaImlauer, BandejaOnetto, BandejaCpim, BandejaProfesional}

// keyword sets are checked in order, first set with any substring
// match wins
var bandejaKeywords = []struct {
	bandeja  Bandeja
	keywords []string
}{
	{BandejaImlauer, []string{"imlauer", "fernando"}},
	{BandejaOnetto, []string{"onetto"}},
	{BandejaCpim, []string{"cpim", "colegio"}},
}

// Classify maps an assigned-user string to a queue. Hits from the
// all-filings view belong to the profesional queue unconditionally,
// even when the assigned user would match another queue's keywords.
// This mirrors observed portal behavior and must not be "improved".
func Classify(usuarioAsignado string, source gop.View) Bandeja {
	if source == gop.ViewAllFilings {
		return BandejaProfesional
	}

	usuario := strings.ToLower(strings.TrimSpace(usuarioAsignado))
	for _, set := range bandejaKeywords {
		for _, keyword := range set.keywords {
			if strings.Contains(usuario, keyword) {
				return set.bandeja
			}
		}
	}
	return BandejaProfesional
}
