package waj

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripPrefixNamer(t *testing.T) {
	n := StripPrefixNamer{Prefix: "/site"}

	tests := []struct {
		in     string
		want   string
		wantOk bool
	}{
		{"/site/index.html", "index.html", true},
		{"/site/css/app.css", "css/app.css", true},
		{"/site/", "", false},
		{"/other/index.html", "", false},
	}
	for _, tt := range tests {
		got, ok := n.Name(tt.in)
		require.Equal(t, tt.wantOk, ok, tt.in)
		if tt.wantOk {
			require.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestStripPrefixNamerWindowsSeparators(t *testing.T) {
	n := StripPrefixNamer{Prefix: `C:\site`}
	got, ok := n.Name(`C:\site\css\app.css`)
	require.True(t, ok)
	require.Equal(t, "css/app.css", got)
}

func TestStripPrefixNamerNoPrefix(t *testing.T) {
	n := StripPrefixNamer{}
	got, ok := n.Name("/a/b.html")
	require.True(t, ok)
	require.Equal(t, "a/b.html", got)
}
