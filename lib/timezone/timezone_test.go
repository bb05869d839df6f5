package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		at     time.Time
		expect string
	}{
		{
			at:     time.Date(2026, time.May, 4, 8, 0, 0, 0, time.UTC),
			expect: "2026-05-04 11:00:00",
		},
		{
			at:     time.Date(2026, time.December, 31, 22, 30, 0, 0, time.UTC),
			expect: "2027-01-01 01:30:00",
		},
		{
			at:     time.Time{},
			expect: "-",
		},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, Format(test.at))
	}
}

func TestNow(t *testing.T) {
	_, offset := Now().Zone()
	require.Equal(t, 3*60*60, offset)
}
