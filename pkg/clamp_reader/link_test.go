package clamp_reader

import (
	"io"
	"time"
)

// fakeLink is a scripted transport: it serves one byte per Read call
// and reports io.EOF once the script runs out, unless readErr is set.
type fakeLink struct {
	data    []byte
	pos     int
	reads   int
	writes  [][]byte
	readErr error
	closed  bool
}

func (l *fakeLink) Read(p []byte) (int, error) {
	l.reads++
	if l.pos >= len(l.data) {
		if l.readErr != nil {
			return 0, l.readErr
		}
		return 0, io.EOF
	}
	p[0] = l.data[l.pos]
	l.pos++
	return 1, nil
}

func (l *fakeLink) Write(p []byte) (int, error) {
	buf := append([]byte(nil), p...)
	l.writes = append(l.writes, buf)
	return len(p), nil
}

func (l *fakeLink) Close() error {
	l.closed = true
	return nil
}

// testProfile is the CM160 profile with a short frame timeout so
// starved-transport tests finish quickly.
func testProfile() DeviceConfig {
	cfg := CM160
	cfg.ReadTimeout = 100 * time.Millisecond
	return cfg
}

func newTestCollector(link *fakeLink, opts Options) (*Collector, error) {
	if opts.Device == "" {
		opts.Device = "/dev/ttyTEST"
	}
	if opts.Config.FrameLength == 0 {
		opts.Config = testProfile()
	}
	if opts.Open == nil {
		opts.Open = func(string, uint) (io.ReadWriteCloser, error) {
			return link, nil
		}
	}
	return New(opts)
}

func frameWithTag(tag byte, payload ...byte) []byte {
	frame := make([]byte, CM160.FrameLength)
	frame[0] = tag
	copy(frame[1:], payload)
	return frame
}

// realtimeFrame builds a live frame carrying the raw current value at
// the CM160 offset, LSB first.
func realtimeFrame(raw uint16) []byte {
	frame := make([]byte, CM160.FrameLength)
	frame[0] = tagRealtimeData
	frame[8] = byte(raw)
	frame[9] = byte(raw >> 8)
	return frame
}

// historyFrame builds a stored record: 2024-05-12 10:30, raw value at
// the usual offset.
func historyFrame(raw uint16) []byte {
	frame := make([]byte, CM160.FrameLength)
	frame[0] = tagHistoryData
	frame[1] = 24 // 2024
	frame[2] = 5
	frame[3] = 12
	frame[4] = 10
	frame[5] = 30
	frame[8] = byte(raw)
	frame[9] = byte(raw >> 8)
	return frame
}

func identifierFrame() []byte {
	return frameWithTag(0x00, []byte("IDTCMV001")...)
}

func waitFrame() []byte {
	return frameWithTag(0x00, []byte("IDTWAITPCR")...)
}
