package zim

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zim/internal/zimtest"
)

func TestVerifyChecksum(t *testing.T) {
	t.Parallel()

	a := testArchive(t, zimtest.Options{})

	sum, ok := a.Checksum()
	require.True(t, ok)
	assert.NotEqual(t, [16]byte{}, sum)

	match, err := a.VerifyChecksum(t.Context())
	require.NoError(t, err)
	assert.True(t, match)
}

func TestVerifyChecksumDetectsCorruption(t *testing.T) {
	t.Parallel()

	img := zimtest.Build(t, zimtest.Options{}, testEntries()...)

	// Flip one bit inside an uncompressed article body. The directory
	// still parses, so only verification notices.
	idx := bytes.Index(img, []byte("<html>main</html>"))
	require.GreaterOrEqual(t, idx, 0)
	img[idx] ^= 0x01

	a, err := New(NewBytesSource(img))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	match, err := a.VerifyChecksum(t.Context())
	require.NoError(t, err)
	assert.False(t, match)

	// The stored trailer itself is still readable.
	_, ok := a.Checksum()
	assert.True(t, ok)
}

func TestChecksumAbsent(t *testing.T) {
	t.Parallel()

	a := testArchive(t, zimtest.Options{SkipChecksum: true})

	_, ok := a.Checksum()
	assert.False(t, ok)

	match, err := a.VerifyChecksum(t.Context())
	require.NoError(t, err)
	assert.False(t, match)

	assert.False(t, a.Info().HasChecksum)
}

func TestVerifyChecksumCancelled(t *testing.T) {
	t.Parallel()

	a := testArchive(t, zimtest.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.VerifyChecksum(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
