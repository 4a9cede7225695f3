package gopsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFecha(t *testing.T) {
	want := time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2024-05-12", want, true},
		{"12/05/2024", want, true},
		{"12-05-2024", want, true},
		{"12/05/24", want, true},
		{"  2024-05-12  ", want, true},

		// timestamps truncate to their date prefix
		{"2024-05-12 08:30:00", want, true},
		{"2024-05-12T08:30:00", want, true},

		{"", time.Time{}, false},
		{"not-a-date", time.Time{}, false},
		{"8:30", time.Time{}, false},
		{"32/13/2024", time.Time{}, false},
	}
	for _, c := range cases {
		got, ok := ParseFecha(c.raw)
		require.Equal(t, c.ok, ok, "raw=%q", c.raw)
		if c.ok {
			require.True(t, got.Equal(c.want), "raw=%q got=%v", c.raw, got)
		}
	}
}
