package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		name    string
		want    Tag
		wantErr bool
	}{
		{"", TagNone, false},
		{"none", TagNone, false},
		{"zstd", TagZstd, false},
		{"lz4", TagLZ4, false},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTag(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	raw := []byte("the quick brown fox jumps over the lazy dog, repeated: " +
		"the quick brown fox jumps over the lazy dog, repeated: " +
		"the quick brown fox jumps over the lazy dog")

	for _, tag := range []Tag{TagNone, TagZstd, TagLZ4} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, err := Compress(tag, raw)
			require.NoError(t, err)

			decompressed, err := Decompress(tag, compressed, int64(len(raw)))
			require.NoError(t, err)
			require.Equal(t, raw, decompressed)
		})
	}
}

func TestCompressEmpty(t *testing.T) {
	for _, tag := range []Tag{TagNone, TagZstd, TagLZ4} {
		compressed, err := Compress(tag, nil)
		require.NoError(t, err)
		decompressed, err := Decompress(tag, compressed, 0)
		require.NoError(t, err)
		require.Empty(t, decompressed)
	}
}

func TestTagString(t *testing.T) {
	require.Equal(t, "none", TagNone.String())
	require.Equal(t, "zstd", TagZstd.String())
	require.Equal(t, "lz4", TagLZ4.String())
	require.Contains(t, Tag(99).String(), "unknown")
}
