package clamp_reader

import "time"

// decodeHistoryRecord turns one history-data frame into a timestamped
// record. The device encodes the record time as year-2000, month, day,
// hour and minute in bytes 1..5; the measurement bytes sit at the same
// offsets as in realtime frames. Records with implausible date fields
// are dropped, the replay stream occasionally carries garbage around
// page boundaries.
func decodeHistoryRecord(frame []byte, cfg DeviceConfig) (HistoryRecord, bool) {
	if len(frame) < 6 {
		return HistoryRecord{}, false
	}

	year := 2000 + int(frame[1])
	month := int(frame[2] & 0x0F)
	day := int(frame[3])
	hour := int(frame[4])
	minute := int(frame[5])

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return HistoryRecord{}, false
	}

	vals := Decode(frame, cfg)
	if vals == nil {
		return HistoryRecord{}, false
	}

	return HistoryRecord{
		Timestamp: time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC),
		Values:    vals,
	}, true
}

// HistoricalData returns a copy of the records replayed by the device
// since connection.
func (c *Collector) HistoricalData() []HistoryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]HistoryRecord, len(c.history))
	copy(out, c.history)
	return out
}

// HistoryComplete reports whether the device has moved past its history
// replay into steady realtime transmission.
func (c *Collector) HistoryComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyDone
}
