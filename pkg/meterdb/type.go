package meterdb

// Live readings pushed by the recorder as they arrive off the websocket.
type MeterDbLiveCurrentReading struct {
	Timestamp int64  `db:"timestamp"`
	Deciamps  uint32 `db:"deciamps"`
}

// History records replayed by the device on connection. Timestamp is
// the primary key: the device re-sends its full log on every connect.
type MeterDbHistoryRecord struct {
	Timestamp int64  `db:"timestamp"`
	Deciamps  uint32 `db:"deciamps"`
}

// Aggregate models - computed from live readings
// Shared row shape for the hourly and daily tables.
type AggregateCurrentTable struct {
	StartTime    int64  `db:"start_time"`
	AvgDeciamps  uint32 `db:"avg_deciamps"`
	PeakDeciamps uint32 `db:"peak_deciamps"`
	SampleCount  uint32 `db:"sample_count"`
}

type AggregateCurrentHourly = AggregateCurrentTable
type AggregateCurrentDaily = AggregateCurrentTable
