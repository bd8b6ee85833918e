package paro

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqlog/pkg/port/porttest"
)

// barometer simulates the command interface of a DigiQuartz barometer.
type barometer struct {
	*porttest.Port
	registers map[string]string
	writes    int
}

func newBarometer(name string, registers map[string]string) *barometer {
	b := &barometer{Port: porttest.New(name), registers: map[string]string{
		CmdModel:        "6000-16B-IS",
		CmdSerialNumber: "140203",
		CmdFirmware:     "R5.10",
		CmdUnits:        "2",
		CmdResolution:   "1",
		CmdOutputMode:   "0",
		CmdDigits:       "0",
		CmdSampleRate:   "20,P4;0.0,1.0",
		CmdAntiAlias:    "4",
		CmdTimestamps:   "1",
		CmdGPS:          "1",
		CmdTimeFormat:   "0",
		CmdDateTime:     "10/16/26 22:45:00",
	}}
	for k, v := range registers {
		b.registers[k] = v
	}

	b.Respond = func(line string) [][]byte {
		if !strings.HasPrefix(line, address) || len(line) < len(address)+2 {
			return nil
		}

		code := line[len(address) : len(address)+2]
		if code == CmdEnableWrite {
			w := strings.TrimPrefix(line, Command(CmdEnableWrite)+address)
			kv := strings.SplitN(w, "=", 2)
			b.registers[kv[0]] = kv[1]
			b.writes++
			return [][]byte{[]byte("*0001" + kv[0] + "=" + kv[1] + "\r\n")}
		}

		v, ok := b.registers[code]
		if !ok {
			return nil
		}
		return [][]byte{[]byte("*0001" + code + "=" + v + "\r\n")}
	}
	return b
}

func TestSend(t *testing.T) {
	b := newBarometer("/dev/ttyUSB0", nil)
	d := NewDevice(b)

	r, err := d.Send("*0100SN")
	require.NoError(t, err)
	assert.Equal(t, "140203", r)
	assert.Equal(t, []string{"*0100SN"}, b.Written())
}

func TestSendSplitResponse(t *testing.T) {
	p := porttest.New("/dev/ttyUSB0")
	p.Respond = func(string) [][]byte {
		return [][]byte{[]byte("*0001MN=60"), []byte("00-16B"), []byte("-IS\r\n*00")}
	}
	d := NewDevice(p)

	r, err := d.Query(CmdModel)
	require.NoError(t, err)
	assert.Equal(t, "6000-16B-IS", r)
}

func TestSendTimeout(t *testing.T) {
	d := NewDevice(porttest.New("/dev/ttyUSB0"))

	r, err := d.Query(CmdModel)
	require.NoError(t, err)
	assert.Empty(t, r)
}

func TestSendClosed(t *testing.T) {
	p := porttest.New("/dev/ttyUSB0")
	require.NoError(t, p.Close())

	_, err := NewDevice(p).Query(CmdModel)
	assert.Error(t, err)
}

func TestPayload(t *testing.T) {
	assert.Equal(t, "1013.25", Payload([]byte("*0001P41013.25\r\n")))
	assert.Equal(t, "", Payload([]byte("*0001\r\n")))
	assert.Equal(t, "", Payload(nil))
}

func TestDiscover(t *testing.T) {
	match := newBarometer("/dev/ttyUSB0", nil)
	other := newBarometer("/dev/ttyUSB1", map[string]string{CmdModel: "1000-30A"})
	silent := porttest.New("/dev/ttyUSB2")

	devices, err := Discover(
		[]string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB9"},
		porttest.Opener(match.Port, other.Port, silent),
		DefaultModel,
	)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	assert.Equal(t, "140203", devices[0].SerialNumber)
	assert.Equal(t, "6000-16B-IS", devices[0].Model)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Port())
	assert.False(t, match.Closed())
	assert.True(t, other.Closed())
	assert.True(t, silent.Closed())
}

func TestDiscoverNonMatching(t *testing.T) {
	other := newBarometer("/dev/ttyUSB0", map[string]string{CmdModel: "745-100A"})

	devices, err := Discover([]string{"/dev/ttyUSB0"}, porttest.Opener(other.Port), DefaultModel)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Empty(t, devices)
	assert.True(t, other.Closed())
	assert.Equal(t, []string{"*0100MN"}, other.Written())
}

func TestDiscoverMissingSerialNumber(t *testing.T) {
	b := newBarometer("/dev/ttyUSB0", nil)
	delete(b.registers, CmdSerialNumber)

	_, err := Discover([]string{"/dev/ttyUSB0"}, porttest.Opener(b.Port), DefaultModel)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.True(t, b.Closed())
}

func TestNegotiate(t *testing.T) {
	b := newBarometer("/dev/ttyUSB0", map[string]string{CmdSampleRate: "10,P4"})
	d := NewDevice(b)

	e, err := Negotiate(d, 20, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 10, e.SampleRate)
	assert.Equal(t, 100*time.Millisecond, e.Timeout)
	assert.Equal(t, 10, d.SampleRate)
	assert.Equal(t, e.Timeout, b.Timeout())
	assert.Equal(t, "2", e.Values[CmdUnits])
	assert.Empty(t, e.Written)
	assert.Zero(t, b.writes)

	var want []string
	for _, f := range Fields {
		want = append(want, Command(f.Code))
	}
	want = append(want, Command(CmdSampleRate))
	assert.Equal(t, want, b.Written())
}

func TestNegotiateInvalidRate(t *testing.T) {
	b := newBarometer("/dev/ttyUSB0", map[string]string{CmdSampleRate: "xx"})

	_, err := Negotiate(NewDevice(b), 20, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestNegotiateWritesOnlyDifferentSettings(t *testing.T) {
	b := newBarometer("/dev/ttyUSB0", map[string]string{CmdUnits: "1"})
	d := NewDevice(b)

	e, err := Negotiate(d, 20, []Setting{{CmdUnits, "2"}, {CmdResolution, "1"}}, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{CmdUnits}, e.Written)
	assert.Equal(t, 1, b.writes)
	assert.Equal(t, "2", e.Values[CmdUnits])
	assert.Equal(t, 1, b.Count("*0100EW*0100UN=2"))
}

func TestEnsureUnchanged(t *testing.T) {
	b := newBarometer("/dev/ttyUSB0", nil)

	changed, err := NewDevice(b).Ensure(CmdGPS, "1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, b.writes)
}

func TestEnsureNoResponse(t *testing.T) {
	b := newBarometer("/dev/ttyUSB0", nil)
	delete(b.registers, CmdGPS)

	changed, err := NewDevice(b).Ensure(CmdGPS, "1")
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.False(t, changed)
	assert.Zero(t, b.writes)
}

func TestParseSampleRate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		rate int
		ok   bool
	}{
		{"20,P4;0.0,1.0", 20, true},
		{"45", 45, true},
		{" 1 ,x", 1, true},
		{"0,P4", 0, false},
		{"46,P4", 0, false},
		{"", 0, false},
	} {
		rate, err := ParseSampleRate(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.rate, rate, tc.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidRate, tc.in)
		}
	}
}

func TestReadTimeout(t *testing.T) {
	assert.Equal(t, time.Second, ReadTimeout(1))
	assert.Equal(t, 200*time.Millisecond, ReadTimeout(5))
	assert.Equal(t, 100*time.Millisecond, ReadTimeout(10))
	assert.Equal(t, 100*time.Millisecond, ReadTimeout(45))
	assert.Equal(t, time.Second, ReadTimeout(0))
}

func TestStartStop(t *testing.T) {
	b := newBarometer("/dev/ttyUSB0", nil)
	d := NewDevice(b)

	require.NoError(t, d.Start())
	require.NoError(t, d.Stop(CmdSerialNumber))
	require.NoError(t, d.Close())

	assert.Equal(t, []string{"*0100P4", "*0100SN"}, b.Written())
	assert.True(t, b.Closed())
}
