// Package clamp_reader drives an OWL current-clamp energy meter over a
// serial link: it assembles fixed-length frames, walks the device
// through its identification handshake and history replay, and decodes
// realtime frames into measurement readings. Readings are cached for a
// short freshness window so callers can poll freely without hammering
// the serial port.
package clamp_reader

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openenergytools/owl_current_meter/pkg/serial_link"
)

// Readings younger than this are served from cache without touching
// the transport.
const freshnessWindow = 15 * time.Second

// Frames examined per Read call before giving up with ErrNoRealtimeData.
// A device stuck in its history replay would otherwise block the caller
// forever.
const defaultMaxAttempts = 25

// Collector owns the serial link to one clamp meter and all protocol
// state. A single mutex serializes foreground reads, the background
// poller and reconnects, so only one of them drives the transport at a
// time.
type Collector struct {
	device       string
	cfg          DeviceConfig
	scanInterval time.Duration
	maxAttempts  int
	open         Opener
	log          logrus.FieldLogger
	onReading    func(Reading)

	mu          sync.Mutex
	link        io.ReadWriteCloser
	connected   bool
	deviceFound bool
	state       DeviceState
	lastReading Reading
	lastRead    time.Time
	history     []HistoryRecord
	historyDone bool

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New validates the device profile and builds a disconnected collector.
func New(opts Options) (*Collector, error) {
	if opts.Device == "" {
		return nil, fmt.Errorf("clamp reader: serial device required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Open == nil {
		opts.Open = serial_link.Open
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	return &Collector{
		device:       opts.Device,
		cfg:          opts.Config,
		scanInterval: opts.ScanInterval,
		maxAttempts:  opts.MaxAttempts,
		open:         opts.Open,
		log:          opts.Logger,
		onReading:    opts.OnReading,
		state:        StateUnknown,
	}, nil
}

// Connect opens the serial link. On success any running background
// poller is cancelled (best effort, without waiting for it to unwind)
// and a fresh one is started when a scan interval is configured. On
// failure the collector stays disconnected.
func (c *Collector) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openLinkLocked(); err != nil {
		return err
	}

	c.stopPollerLocked()
	if c.scanInterval > 0 {
		c.startPollerLocked()
	}
	return nil
}

// Read returns the configured measurements. Cached values younger than
// the freshness window are returned as-is; otherwise frames are
// assembled and dispatched until a realtime frame yields a reading or
// the attempt budget runs out (ErrNoRealtimeData). A transport failure
// marks the collector disconnected; the next call reconnects.
func (c *Collector) Read() (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		if err := c.openLinkLocked(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}

	if c.lastReading != nil && time.Since(c.lastRead) <= freshnessWindow {
		return c.lastReading, nil
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		frame, err := c.assemble()
		if err != nil {
			c.dropLinkLocked(err)
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		if len(frame) == 0 {
			// Frame timed out; retry within the attempt budget.
			continue
		}

		res, err := c.dispatch(frame)
		if err != nil {
			c.dropLinkLocked(err)
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		if res != nil {
			c.lastReading = res
			c.lastRead = time.Now()
			return res, nil
		}
	}

	return nil, ErrNoRealtimeData
}

// SupportedValues lists the measurement names the active profile decodes.
func (c *Collector) SupportedValues() []string {
	names := make([]string, 0, len(c.cfg.Offsets))
	for name := range c.cfg.Offsets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastReading returns the cached reading, or nil before the first
// successful read.
func (c *Collector) LastReading() Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReading
}

// Status snapshots the collector state.
func (c *Collector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:   c.connected,
		DeviceFound: c.deviceFound,
		DeviceState: c.state,
		LastRead:    c.lastRead,
	}
}

// Close cancels the background poller, waits for it to finish and
// releases the serial link.
func (c *Collector) Close() error {
	c.mu.Lock()
	cancel, done := c.pollCancel, c.pollDone
	c.pollCancel, c.pollDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLinkLocked()
}

// openLinkLocked (re)opens the serial link. Reconnection keeps the
// handshake state: the device remembers us across a dropped link, and a
// restarted device simply re-identifies through the marker scan.
func (c *Collector) openLinkLocked() error {
	if c.connected {
		return nil
	}
	if c.link != nil {
		c.link.Close()
		c.link = nil
	}

	link, err := c.open(c.device, c.cfg.BaudRate)
	if err != nil {
		c.connected = false
		c.log.Warnf("connect %s: %v", c.device, err)
		return fmt.Errorf("open %s: %w", c.device, err)
	}

	c.link = link
	c.connected = true
	c.log.Infof("connected to %s at %d baud", c.device, c.cfg.BaudRate)
	return nil
}

// dropLinkLocked closes the link after a transport failure and marks
// the collector disconnected.
func (c *Collector) dropLinkLocked(cause error) {
	c.log.Warnf("serial link failure: %v", cause)
	c.closeLinkLocked()
}

func (c *Collector) closeLinkLocked() error {
	c.connected = false
	if c.link == nil {
		return nil
	}
	err := c.link.Close()
	c.link = nil
	c.log.Info("serial link closed")
	return err
}

// startPollerLocked launches the background refresh loop. The goroutine
// takes the collector mutex through Read, so it never overlaps a
// foreground caller on the transport.
func (c *Collector) startPollerLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done
	interval := c.scanInterval

	go func() {
		defer close(done)
		for {
			reading, err := c.Read()
			switch {
			case err != nil:
				c.log.Warnf("background poll: %v", err)
			case c.onReading != nil:
				c.onReading(reading)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()
}

// stopPollerLocked cancels the running poller without waiting for it.
// A poller blocked inside Read holds out for the mutex we currently
// own; it finishes that one cycle after we release it and then exits.
func (c *Collector) stopPollerLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
		c.pollDone = nil
	}
}
