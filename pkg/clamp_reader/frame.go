package clamp_reader

import (
	"errors"
	"io"
	"time"
)

// Pause between polls of a link that reports no data yet, so a quiet
// port does not spin the CPU for the whole frame timeout.
const idleReadDelay = 20 * time.Millisecond

// assemble reads single bytes off the link until a full frame is
// buffered or the per-frame timeout elapses. On timeout the partial
// buffer is discarded and an empty frame is returned; a bit-slipped
// link therefore needs a resync, not a continuation. EOF while waiting
// counts as "no byte yet" and resolves to a timeout like any other
// silence. Only genuine link failures are returned as errors.
func (c *Collector) assemble() ([]byte, error) {
	buf := make([]byte, 0, c.cfg.FrameLength)
	one := make([]byte, 1)
	start := time.Now()

	for len(buf) < c.cfg.FrameLength {
		if time.Since(start) > c.cfg.ReadTimeout {
			c.log.Warnf("timeout waiting for frame data (%d/%d bytes)", len(buf), c.cfg.FrameLength)
			return nil, nil
		}

		n, err := c.link.Read(one)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				time.Sleep(idleReadDelay)
				continue
			}
			return nil, err
		}
		if n == 0 {
			time.Sleep(idleReadDelay)
			continue
		}
		buf = append(buf, one[0])
	}

	return buf, nil
}
