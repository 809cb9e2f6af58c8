package clamp_reader

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*DeviceConfig)
	}{
		{"zero frame length", func(c *DeviceConfig) { c.FrameLength = 0 }},
		{"no offsets", func(c *DeviceConfig) { c.Offsets = nil }},
		{"offset out of bounds", func(c *DeviceConfig) { c.Offsets = map[string]int{"Current": 10} }},
		{"zero multiplier", func(c *DeviceConfig) { c.Multiplier = 0 }},
		{"zero timeout", func(c *DeviceConfig) { c.ReadTimeout = 0 }},
		{"zero baud", func(c *DeviceConfig) { c.BaudRate = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := CM160
			cfg.Offsets = map[string]int{"Current": 8}
			tc.mutate(&cfg)
			_, err := New(Options{Device: "/dev/ttyTEST", Config: cfg})
			assert.Error(t, err)
		})
	}
}

func TestSupportedValues(t *testing.T) {
	c, err := newTestCollector(&fakeLink{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{ValueCurrent}, c.SupportedValues())
}

func TestReadServesFromCacheWithinFreshnessWindow(t *testing.T) {
	link := &fakeLink{data: append(realtimeFrame(200), realtimeFrame(300)...)}
	c, err := newTestCollector(link, Options{})
	require.NoError(t, err)

	first, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, 14.0, first[ValueCurrent])

	touches := link.reads
	second, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, touches, link.reads, "fresh cache must not touch the transport")

	// Age the cache past the freshness window; the next call must
	// return to the transport and pick up the second frame.
	c.mu.Lock()
	c.lastRead = time.Now().Add(-freshnessWindow - time.Second)
	c.mu.Unlock()

	third, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, 21.0, third[ValueCurrent])
	assert.Greater(t, link.reads, touches)
}

func TestReadGivesUpAfterAttemptBudget(t *testing.T) {
	var script []byte
	for i := 0; i < 3; i++ {
		script = append(script, historyFrame(100)...)
	}
	link := &fakeLink{data: script}
	c, err := newTestCollector(link, Options{MaxAttempts: 3})
	require.NoError(t, err)

	_, err = c.Read()
	assert.ErrorIs(t, err, ErrNoRealtimeData)

	// The failed cycle must not poison the cache: the device moving on
	// to realtime frames is picked up by the very next call.
	link.data = append(link.data, realtimeFrame(200)...)
	reading, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, 14.0, reading[ValueCurrent])

	assert.Len(t, c.HistoricalData(), 3)
	assert.True(t, c.HistoryComplete())
}

func TestReadTransportFailureDisconnectsAndRecovers(t *testing.T) {
	bad := &fakeLink{readErr: errors.New("device unplugged")}
	good := &fakeLink{data: realtimeFrame(200)}
	links := []*fakeLink{bad, good}

	opens := 0
	c, err := newTestCollector(nil, Options{
		Open: func(string, uint) (io.ReadWriteCloser, error) {
			link := links[opens]
			opens++
			return link, nil
		},
	})
	require.NoError(t, err)

	_, err = c.Read()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, bad.closed, "failed link must be released")
	assert.False(t, c.Status().Connected)

	reading, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, 14.0, reading[ValueCurrent])
	assert.Equal(t, 2, opens, "second read reconnects on demand")
}

func TestConnectFailureLeavesCollectorDisconnected(t *testing.T) {
	c, err := newTestCollector(nil, Options{
		Open: func(string, uint) (io.ReadWriteCloser, error) {
			return nil, errors.New("no such device")
		},
	})
	require.NoError(t, err)

	assert.Error(t, c.Connect())
	status := c.Status()
	assert.False(t, status.Connected)
	assert.False(t, status.DeviceFound)
	assert.Equal(t, StateUnknown, status.DeviceState)
}

func TestBackgroundPollerDeliversReadingsAndStops(t *testing.T) {
	link := &fakeLink{data: realtimeFrame(200)}
	readings := make(chan Reading, 16)

	c, err := newTestCollector(link, Options{
		ScanInterval: 10 * time.Millisecond,
		OnReading: func(r Reading) {
			select {
			case readings <- r:
			default:
			}
		},
	})
	require.NoError(t, err)

	require.NoError(t, c.Connect())

	select {
	case r := <-readings:
		assert.Equal(t, 14.0, r[ValueCurrent])
	case <-time.After(2 * time.Second):
		t.Fatal("poller never delivered a reading")
	}

	require.NoError(t, c.Close())
	assert.True(t, link.closed)
	assert.False(t, c.Status().Connected)
}

func TestStatusReflectsHandshakeProgress(t *testing.T) {
	link := &fakeLink{data: append(identifierFrame(), realtimeFrame(200)...)}
	c, err := newTestCollector(link, Options{})
	require.NoError(t, err)

	_, err = c.Read()
	require.NoError(t, err)

	status := c.Status()
	assert.True(t, status.Connected)
	assert.True(t, status.DeviceFound)
	assert.Equal(t, StateTransmittingRealtime, status.DeviceState)
	assert.False(t, status.LastRead.IsZero())
}
