package wajerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMissingPackUnwrapsWrappedError(t *testing.T) {
	mp := MissingPack{UUID: "abc", Locator: "out.1.wajc", ContentP: 1}
	wrapped := fmt.Errorf("container: reading pack: %w", mp)

	require.True(t, IsMissingPack(wrapped))
	require.True(t, IsMissingPack(mp))
	require.False(t, IsMissingPack(ErrNotFound))

	got, ok := AsMissingPack(wrapped)
	require.True(t, ok)
	require.Equal(t, mp, got)
}

func TestSentinelErrorsAreComparable(t *testing.T) {
	require.Equal(t, ErrBadMagic, ErrBadMagic)
	require.NotEqual(t, ErrBadMagic, ErrTruncated)
}

func TestPackIDOutOfRangeMessage(t *testing.T) {
	err := PackIDOutOfRange{PackID: 5, DeclaredMax: 2}
	require.Contains(t, err.Error(), "5")
	require.Contains(t, err.Error(), "2")
}
