package framer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqlog/pkg/port/porttest"
)

const stream = "*0001MN=6000-16B-IS\r\n*0001SN=140203\r\n*0001P41013.25\r\n*0001P41013.26\r\n"

var want = []string{
	"*0001MN=6000-16B-IS\r\n",
	"*0001SN=140203\r\n",
	"*0001P41013.25\r\n",
	"*0001P41013.26\r\n",
}

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()

	var frames []string
	for {
		f, err := r.ReadFrame()
		require.NoError(t, err)
		if len(f) == 0 {
			return frames
		}
		frames = append(frames, string(f))
	}
}

func TestReadFrameChunkingInvariance(t *testing.T) {
	for size := 1; size <= len(stream); size++ {
		p := porttest.New("chunked")
		for i := 0; i < len(stream); i += size {
			end := i + size
			if end > len(stream) {
				end = len(stream)
			}
			p.QueueString(stream[i:end])
		}

		r := New(p)
		assert.Equal(t, want, readAll(t, r), "chunk size %d", size)
		assert.Zero(t, r.Buffered(), "chunk size %d", size)
	}
}

func TestReadFrameRetainsExcess(t *testing.T) {
	p := porttest.New("excess")
	p.QueueString("*0001SN=140203\r\n*0001P4101")

	r := New(p)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "*0001SN=140203\r\n", string(f))
	assert.Equal(t, len("*0001P4101"), r.Buffered())

	p.QueueString("3.25\r\n")
	f, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "*0001P41013.25\r\n", string(f))
}

func TestReadFrameServesBufferedFirst(t *testing.T) {
	p := porttest.New("buffered")
	p.QueueString("a\nb\n")

	r := New(p)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(f))

	// queue is empty, a second frame must come from the buffer without a read
	f, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(f))
}

func TestReadFrameTimeout(t *testing.T) {
	p := porttest.New("timeout")
	p.Queue([]byte("*0001P4"), nil, nil, []byte("1013.25\r\n"))

	r := New(p)

	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Empty(t, f)

	f, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Empty(t, f)

	f, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "*0001P41013.25\r\n", string(f))

	f, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Empty(t, f)
}

func TestReadFrameFramesAreImmutable(t *testing.T) {
	p := porttest.New("copy")
	p.QueueString("first\nsecond\n")

	r := New(p)
	first, err := r.ReadFrame()
	require.NoError(t, err)
	_, err = r.ReadFrame()
	require.NoError(t, err)

	assert.Equal(t, "first\n", string(first))
}

type brokenReader struct{}

var errBroken = errors.New("input/output error")

func (brokenReader) Read([]byte) (int, error) { return 0, errBroken }

func TestReadFrameConnectionError(t *testing.T) {
	r := New(brokenReader{})
	f, err := r.ReadFrame()
	assert.Empty(t, f)
	assert.ErrorIs(t, err, errBroken)
}

func TestReadFrameLimit(t *testing.T) {
	p := porttest.New("limit")
	p.QueueString("0123456789")
	p.QueueString("0123456789")

	r := New(p)
	r.SetLimit(15)

	f, err := r.ReadFrame()
	assert.Empty(t, f)
	assert.ErrorIs(t, err, ErrFrameTooLong)
	assert.Zero(t, r.Buffered())
}

func TestReset(t *testing.T) {
	p := porttest.New("reset")
	p.QueueString("garbage")

	r := New(p)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Empty(t, f)
	assert.Equal(t, 7, r.Buffered())

	r.Reset()
	assert.Zero(t, r.Buffered())
}
