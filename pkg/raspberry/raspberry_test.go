package raspberry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	values []int
	closed bool
}

func (f *fakeOutput) SetValue(v int) error {
	f.values = append(f.values, v)
	return nil
}

func (f *fakeOutput) Close() error {
	f.closed = true
	return nil
}

func TestOpenLEDInvalid(t *testing.T) {
	_, err := OpenLED("gpiochip0", -1)
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = OpenLED("", 17)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestToggle(t *testing.T) {
	f := &fakeOutput{}
	l := &LED{line: f}

	require.NoError(t, l.Toggle())
	require.NoError(t, l.Toggle())
	require.NoError(t, l.Toggle())
	require.NoError(t, l.Close())

	assert.Equal(t, []int{1, 0, 1, 0}, f.values)
	assert.True(t, f.closed)
}
