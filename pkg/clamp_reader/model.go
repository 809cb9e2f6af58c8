package clamp_reader

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ByteOrder selects how the two measurement bytes combine into a 16-bit value.
type ByteOrder int

const (
	MSBFirst ByteOrder = iota
	LSBFirst
)

// DeviceConfig describes one supported clamp meter model.
// Immutable after construction; Validate must pass before use.
type DeviceConfig struct {
	FrameLength int            // fixed frame size in bytes
	ByteOrder   ByteOrder      // order of the two value bytes
	Offsets     map[string]int // measurement name -> offset within the frame
	Multiplier  float64        // scale applied to the raw 16-bit value
	ReadTimeout time.Duration  // budget for assembling a single frame
	BaudRate    uint           // serial link speed
}

func (c DeviceConfig) Validate() error {
	if c.FrameLength <= 0 {
		return fmt.Errorf("device config: frame length must be positive, got %d", c.FrameLength)
	}
	if len(c.Offsets) == 0 {
		return errors.New("device config: at least one measurement offset required")
	}
	for name, offset := range c.Offsets {
		if offset < 0 || offset+1 >= c.FrameLength {
			return fmt.Errorf("device config: offset %d for %q does not fit a %d byte frame",
				offset, name, c.FrameLength)
		}
	}
	if c.Multiplier <= 0 {
		return fmt.Errorf("device config: multiplier must be positive, got %v", c.Multiplier)
	}
	if c.ReadTimeout <= 0 {
		return errors.New("device config: read timeout must be positive")
	}
	if c.BaudRate == 0 {
		return errors.New("device config: baud rate required")
	}
	return nil
}

// Measurement name for the single value the CM160 reports.
const ValueCurrent = "Current"

// CM160 is the profile for the OWL CM160 current clamp transmitter.
var CM160 = DeviceConfig{
	FrameLength: 11,
	ByteOrder:   LSBFirst,
	Offsets:     map[string]int{ValueCurrent: 8},
	Multiplier:  0.07,
	ReadTimeout: 30 * time.Second,
	BaudRate:    250000,
}

// SupportedMeters maps model names to their device profiles.
var SupportedMeters = map[string]DeviceConfig{
	"CM160": CM160,
}

// DeviceState tracks how far the device has come through its handshake.
type DeviceState int

const (
	StateUnknown DeviceState = iota
	StateIdentifierReceived
	StateTransmittingHistory
	StateTransmittingRealtime
)

func (s DeviceState) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateIdentifierReceived:
		return "IdentifierReceived"
	case StateTransmittingHistory:
		return "TransmittingHistory"
	case StateTransmittingRealtime:
		return "TransmittingRealtime"
	default:
		return fmt.Sprintf("DeviceState(%d)", int(s))
	}
}

// Reading maps measurement names to scaled values, one decimal place.
type Reading map[string]float64

// HistoryRecord is one timestamped measurement from the device's
// internal log, replayed during the history phase.
type HistoryRecord struct {
	Timestamp time.Time
	Values    Reading
}

// Status is a point-in-time snapshot of the collector.
type Status struct {
	Connected   bool
	DeviceFound bool
	DeviceState DeviceState
	LastRead    time.Time // zero until the first successful read
}

// Opener opens the byte link to the device. Injected so tests can
// substitute a scripted transport.
type Opener func(device string, baud uint) (io.ReadWriteCloser, error)

// Options configures a Collector. Device and Config are required.
type Options struct {
	Device       string
	Config       DeviceConfig
	ScanInterval time.Duration      // 0 disables the background poller
	MaxAttempts  int                // frames examined per Read before giving up, 0 = default
	Open         Opener             // nil = serial_link.Open
	Logger       logrus.FieldLogger // nil = logrus standard logger
	OnReading    func(Reading)      // called by the poller on each fresh reading
}

var (
	// ErrNotConnected is returned when the serial link is down and
	// could not be reopened.
	ErrNotConnected = errors.New("clamp reader: not connected")

	// ErrNoRealtimeData is returned when the frame budget for one read
	// cycle is spent without the device producing a realtime frame.
	ErrNoRealtimeData = errors.New("clamp reader: no realtime data yet")
)
