package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainsFold(t *testing.T) {
	cases := []struct {
		s      string
		substr string
		expect bool
	}{
		{s: "Motor Kaputu", substr: "kaput", expect: true},
		{s: "ÖN KAPUT", substr: "ön kaput", expect: true},
		{s: "  Sol Ön\n  Çamurluk ", substr: "sol ön çamurluk", expect: true},
		{s: "Tavan", substr: "kaput", expect: false},
		{s: "İÇ DİKİZ", substr: "iç dikiz", expect: true},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, ContainsFold(test.s, test.substr), "%q in %q", test.substr, test.s)
	}
}

func TestMatchAny(t *testing.T) {
	matched, ok := MatchAny("Motor Kaputu", []string{"tavan", "kaput"})
	require.True(t, ok)
	require.Equal(t, "kaput", matched)

	_, ok = MatchAny("Bagaj", []string{"tavan", "kaput"})
	require.False(t, ok)
}

func TestCollapseSpace(t *testing.T) {
	require.Equal(t, "İstanbul Kadıköy", CollapseSpace("\n İstanbul\n   Kadıköy  "))
}
