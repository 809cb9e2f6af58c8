package aggregator

import "github.com/openenergytools/owl_current_meter/pkg/meterdb"

type Timeframe uint8

const (
	TimeframeHourly Timeframe = iota
	TimeframeDaily
)

type AggregateData struct {
	Timeframe Timeframe
	StartTime int64
	Aggregate meterdb.AggregateCurrentTable
}
