package clamp_reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeByteOrder(t *testing.T) {
	frame := []byte{0x00, 0x01, 0x02, 0x00}

	msb := DeviceConfig{
		FrameLength: 4,
		ByteOrder:   MSBFirst,
		Offsets:     map[string]int{"Value": 1},
		Multiplier:  1,
		ReadTimeout: time.Second,
		BaudRate:    9600,
	}
	lsb := msb
	lsb.ByteOrder = LSBFirst

	assert.Equal(t, 258.0, Decode(frame, msb)["Value"], "MSB: 0x01*256 + 0x02")
	assert.Equal(t, 513.0, Decode(frame, lsb)["Value"], "LSB: 0x02*256 + 0x01")
}

func TestDecodeScalingAndRounding(t *testing.T) {
	reading := Decode(realtimeFrame(200), CM160)
	require.NotNil(t, reading)
	assert.Equal(t, 14.0, reading[ValueCurrent])

	// 201 * 0.07 = 14.07, rounds to one decimal place
	assert.Equal(t, 14.1, Decode(realtimeFrame(201), CM160)[ValueCurrent])
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	assert.Nil(t, Decode(realtimeFrame(200)[:10], CM160))
	assert.Nil(t, Decode(nil, CM160))
}

func TestDispatchWrongLengthIsInert(t *testing.T) {
	link := &fakeLink{}
	c, err := newTestCollector(link, Options{})
	require.NoError(t, err)
	c.link = link

	reading, err := c.dispatch(realtimeFrame(200)[:7])
	require.NoError(t, err)
	assert.Nil(t, reading)
	assert.Equal(t, StateUnknown, c.state)
	assert.False(t, c.deviceFound)
	assert.Empty(t, link.writes)
}

// Scripted handshake: identifier frame, history request, one history
// record, then the first realtime frame.
func TestDispatchHandshakeSequence(t *testing.T) {
	link := &fakeLink{}
	c, err := newTestCollector(link, Options{})
	require.NoError(t, err)
	c.link = link

	reading, err := c.dispatch(identifierFrame())
	require.NoError(t, err)
	assert.Nil(t, reading)
	assert.True(t, c.deviceFound)
	assert.Equal(t, StateIdentifierReceived, c.state)
	assert.Empty(t, link.writes, "identifier alone must not trigger a command")

	reading, err = c.dispatch(frameWithTag(tagHistoryRequest))
	require.NoError(t, err)
	assert.Nil(t, reading)
	require.Len(t, link.writes, 1, "start command follows the history request")
	assert.Equal(t, cmdStart, link.writes[0])

	reading, err = c.dispatch(historyFrame(100))
	require.NoError(t, err)
	assert.Nil(t, reading)
	assert.Equal(t, StateTransmittingHistory, c.state)
	require.Len(t, c.history, 1)
	assert.False(t, c.historyDone)

	reading, err = c.dispatch(realtimeFrame(200))
	require.NoError(t, err)
	require.NotNil(t, reading)
	assert.Equal(t, 14.0, reading[ValueCurrent])
	assert.Equal(t, StateTransmittingRealtime, c.state)
	assert.True(t, c.historyDone)

	assert.Len(t, link.writes, 1, "start command is written exactly once")
}

func TestDispatchHistoryRequestBeforeIdentification(t *testing.T) {
	link := &fakeLink{}
	c, err := newTestCollector(link, Options{})
	require.NoError(t, err)
	c.link = link

	_, err = c.dispatch(frameWithTag(tagHistoryRequest))
	require.NoError(t, err)
	assert.Empty(t, link.writes, "no start command until the device is identified")
}

func TestDispatchWaitMarkerSendsContinue(t *testing.T) {
	link := &fakeLink{}
	c, err := newTestCollector(link, Options{})
	require.NoError(t, err)
	c.link = link

	// Wait marker before identification is ignored.
	_, err = c.dispatch(waitFrame())
	require.NoError(t, err)
	assert.Empty(t, link.writes)

	_, err = c.dispatch(identifierFrame())
	require.NoError(t, err)

	_, err = c.dispatch(waitFrame())
	require.NoError(t, err)
	require.Len(t, link.writes, 1)
	assert.Equal(t, cmdContinue, link.writes[0])
}

func TestDispatchIdentifierDoesNotRegressState(t *testing.T) {
	link := &fakeLink{}
	c, err := newTestCollector(link, Options{})
	require.NoError(t, err)
	c.link = link

	_, err = c.dispatch(identifierFrame())
	require.NoError(t, err)
	_, err = c.dispatch(realtimeFrame(50))
	require.NoError(t, err)
	require.Equal(t, StateTransmittingRealtime, c.state)

	_, err = c.dispatch(identifierFrame())
	require.NoError(t, err)
	assert.Equal(t, StateTransmittingRealtime, c.state)
}

func TestDecodeHistoryRecord(t *testing.T) {
	rec, ok := decodeHistoryRecord(historyFrame(200), CM160)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 12, 10, 30, 0, 0, time.UTC), rec.Timestamp)
	assert.Equal(t, 14.0, rec.Values[ValueCurrent])
}

func TestDecodeHistoryRecordRejectsGarbage(t *testing.T) {
	bad := historyFrame(200)
	bad[2] = 13 // month out of range
	_, ok := decodeHistoryRecord(bad, CM160)
	assert.False(t, ok)

	bad = historyFrame(200)
	bad[4] = 24 // hour out of range
	_, ok = decodeHistoryRecord(bad, CM160)
	assert.False(t, ok)
}
