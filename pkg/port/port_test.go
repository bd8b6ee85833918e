package port

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerate(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"ttyUSB1", "ttyUSB0", "ttyS0", "cu.usbserial-A1"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o600))
	}

	ports, err := Enumerate([]string{
		filepath.Join(dir, "ttyUSB*"),
		filepath.Join(dir, "cu.usbserial*"),
		filepath.Join(dir, "ttyUSB0"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "cu.usbserial-A1"),
		filepath.Join(dir, "ttyUSB0"),
		filepath.Join(dir, "ttyUSB1"),
	}, ports)
}

func TestEnumerateNone(t *testing.T) {
	_, err := Enumerate([]string{filepath.Join(t.TempDir(), "ttyUSB*")})
	assert.ErrorIs(t, err, ErrNoPorts)
}

func TestEnumerateBadPattern(t *testing.T) {
	_, err := Enumerate([]string{"[-"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPorts)
}
