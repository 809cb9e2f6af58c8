package clamp_reader

import (
	"bytes"
	"encoding/hex"
	"math"
)

// Frame tags, first byte of every 11-byte record.
const (
	tagHistoryRequest = 0xA9 // device asks whether to replay or go live
	tagRealtimeData   = 0x51 // live measurement
	tagHistoryData    = 0x59 // one stored history record
)

// Handshake markers, ASCII substrings inside the frame payload.
var (
	markerIdentifier  = []byte("IDTCM")
	markerWaitHistory = []byte("IDTWAITPCR")
)

// Commands written back to the device.
var (
	cmdStart    = []byte{0x5A} // begin steady transmission
	cmdContinue = []byte{0xA5} // resume a paused history replay
)

// dispatch inspects one assembled frame: handshake markers first, then
// the frame tag. Both checks run on the same frame, so an identifier
// frame can mark the device as found and still have its tag handled in
// the same call. Only realtime frames yield a reading. A returned error
// means the write-back to the device failed.
func (c *Collector) dispatch(frame []byte) (Reading, error) {
	if len(frame) != c.cfg.FrameLength {
		c.log.Warnf("dropping frame of unexpected length %d", len(frame))
		return nil, nil
	}
	c.log.Debugf("<- %s", hex.EncodeToString(frame))

	// Everything after the tag byte; handshake frames are ASCII text
	// that can run all the way to the last byte.
	payload := frame[1:]

	if bytes.Contains(payload, markerIdentifier) {
		if !c.deviceFound {
			c.log.Infof("device identified (%q)", payload)
		}
		c.deviceFound = true
		if c.state == StateUnknown {
			c.state = StateIdentifierReceived
		}
	}

	if c.deviceFound && bytes.Contains(payload, markerWaitHistory) {
		if err := c.send(cmdContinue); err != nil {
			return nil, err
		}
	}

	switch frame[0] {
	case tagHistoryRequest:
		if c.deviceFound {
			if err := c.send(cmdStart); err != nil {
				return nil, err
			}
		}

	case tagRealtimeData:
		if c.state == StateTransmittingHistory {
			c.log.Infof("history replay finished, %d records collected", len(c.history))
			c.historyDone = true
		}
		c.state = StateTransmittingRealtime
		return Decode(frame, c.cfg), nil

	case tagHistoryData:
		c.state = StateTransmittingHistory
		if rec, ok := decodeHistoryRecord(frame, c.cfg); ok {
			c.history = append(c.history, rec)
		}

	default:
		c.log.Debugf("ignoring frame with unknown tag 0x%02x", frame[0])
	}

	return nil, nil
}

// send writes a command to the device.
func (c *Collector) send(data []byte) error {
	c.log.Debugf("-> %s", hex.EncodeToString(data))
	_, err := c.link.Write(data)
	return err
}

// Decode extracts the configured measurements from a realtime frame.
// The two bytes at each offset combine into a 16-bit value per the
// configured byte order, scaled and rounded to one decimal place.
// Pure: no state is touched. Returns nil when the frame length does
// not match the profile.
func Decode(frame []byte, cfg DeviceConfig) Reading {
	if len(frame) != cfg.FrameLength {
		return nil
	}

	res := Reading{}
	for name, offset := range cfg.Offsets {
		var raw uint16
		if cfg.ByteOrder == MSBFirst {
			raw = uint16(frame[offset])<<8 | uint16(frame[offset+1])
		} else {
			raw = uint16(frame[offset+1])<<8 | uint16(frame[offset])
		}
		res[name] = math.Round(float64(raw)*cfg.Multiplier*10) / 10
	}
	return res
}
