package manifest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	descs := []Descriptor{
		{PackID: 0, UUID: uuid.New(), Size: 100, Checksum: 0xdeadbeef, Locator: ""},
		{PackID: 1, UUID: uuid.New(), Size: 200, Checksum: 0xcafef00d, Locator: "out.1.wajc"},
	}

	buf := Serialize(descs)
	m, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(Version), m.Version)
	require.Len(t, m.Descriptors, 2)
	require.Equal(t, descs, m.Descriptors)
}

func TestParseRejectsTruncated(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	require.Error(t, err)
}
