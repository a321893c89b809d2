package sizing

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("too big")

func TestToInt(t *testing.T) {
	t.Parallel()

	n, err := ToInt(42, errTest)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ToInt(math.MaxUint64, errTest)
	require.ErrorIs(t, err, errTest)
}

func TestToInt64(t *testing.T) {
	t.Parallel()

	n, err := ToInt64(uint64(math.MaxInt64), errTest)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)

	_, err = ToInt64(uint64(math.MaxInt64)+1, errTest)
	require.ErrorIs(t, err, errTest)
}

func TestAddUint64(t *testing.T) {
	t.Parallel()

	sum, ok := AddUint64(1, 2)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), sum)

	_, ok = AddUint64(math.MaxUint64, 1)
	assert.False(t, ok)

	sum, ok = AddUint64(math.MaxUint64, 0)
	assert.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), sum)
}

func TestMulUint64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b uint64
		want uint64
		ok   bool
	}{
		{"small", 6, 7, 42, true},
		{"zero left", 0, math.MaxUint64, 0, true},
		{"zero right", math.MaxUint64, 0, 0, true},
		{"max by one", math.MaxUint64, 1, math.MaxUint64, true},
		{"overflow", math.MaxUint64, 2, 0, false},
		{"overflow large", 1 << 33, 1 << 33, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MulUint64(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	data, err := ReadAllWithLimit(strings.NewReader("hello"), 10, errTest)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// Exactly at the limit is fine.
	data, err = ReadAllWithLimit(strings.NewReader("hello"), 5, errTest)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = ReadAllWithLimit(strings.NewReader("hello!"), 5, errTest)
	require.ErrorIs(t, err, errTest)

	_, err = ReadAllWithLimit(bytes.NewReader(make([]byte, 100)), 0, errTest)
	require.ErrorIs(t, err, errTest)
}
