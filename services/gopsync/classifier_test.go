package gopsync

import (
	"testing"

	"cpim-backend/lib/scrapers/gop"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		usuario string
		source  gop.View
		want    Bandeja
	}{
		{"Fernando Imlauer", gop.ViewMyTrays, BandejaImlauer},
		{"FERNANDO", gop.ViewMyTrays, BandejaImlauer},
		{"arq. onetto", gop.ViewMyTrays, BandejaOnetto},
		{"Mesa CPIM", gop.ViewMyTrays, BandejaCpim},
		{"Colegio de Ingenieros", gop.ViewMyTrays, BandejaCpim},
		{"Juan Perez", gop.ViewMyTrays, BandejaProfesional},
		{"", gop.ViewMyTrays, BandejaProfesional},

		// the all-filings view always classifies as profesional, even
		// when the assigned user matches another queue's keywords
		{"Fernando Imlauer", gop.ViewAllFilings, BandejaProfesional},
		{"onetto", gop.ViewAllFilings, BandejaProfesional},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Classify(c.usuario, c.source), "usuario=%q source=%q", c.usuario, c.source)
	}
}
