// Responsible for storing the data collected from the clamp meter.
// Depends on the meter API being online.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openenergytools/owl_current_meter/pkg/aggregator"
	"github.com/openenergytools/owl_current_meter/pkg/cmutils"
	"github.com/openenergytools/owl_current_meter/pkg/config"
	"github.com/openenergytools/owl_current_meter/pkg/feed"
	"github.com/openenergytools/owl_current_meter/pkg/meterdb"
)

func main() {
	if err := config.LoadMeterRecorderConfig(); err != nil {
		logrus.Fatalf("Failed to load meter recorder config: %v", err)
	}
	cfg := config.ActiveMeterRecorderConfig

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Initialize database
	meterdb.InitializeDatabase()

	// Hourly aggregation + cleanup
	go aggregator.StartScheduler()

	// Pull the device's replayed history once it is complete
	go syncHistory(cfg.MeterAPIHost)

	// Subscribe to websocket with revive
	feed.StartListener(cfg.MeterAPIHost, handleReading)
}

// Store each live reading as it arrives
func handleReading(reading *feed.CurrentReading) {
	ts, err := time.Parse(time.RFC3339, reading.Timestamp)
	if err != nil {
		logrus.Warnf("Reading with bad timestamp %q: %v", reading.Timestamp, err)
		return
	}

	err = meterdb.InsertLiveCurrentReading(&meterdb.MeterDbLiveCurrentReading{
		Timestamp: ts.Unix(),
		Deciamps:  cmutils.AmpsToDeciamps(reading.CurrentA),
	})
	if err != nil {
		logrus.Warnf("Failed to store reading: %v", err)
		return
	}

	logrus.Debugf("Stored reading: %.1f A (~%.0f W at %.0f V)",
		reading.CurrentA, estimatedWatts(reading.CurrentA), config.ActiveMeterRecorderConfig.MainsVoltage)
}

// estimatedWatts converts a current reading into an apparent-power
// estimate using the configured mains voltage.
func estimatedWatts(currentA float64) float64 {
	return cmutils.AmpsToWatts(currentA, config.ActiveMeterRecorderConfig.MainsVoltage)
}

// syncHistory polls the API until the device's history replay is
// complete, then persists the records and stops.
func syncHistory(host string) {
	url := fmt.Sprintf("http://%s/history", host)

	for {
		time.Sleep(time.Minute)

		snapshot, err := fetchHistory(url)
		if err != nil {
			logrus.Debugf("History fetch failed: %v", err)
			continue
		}
		if !snapshot.Complete {
			logrus.Debugf("History replay still running (%d records so far)", len(snapshot.Records))
			continue
		}

		stored := 0
		for _, rec := range snapshot.Records {
			ts, err := time.Parse(time.RFC3339, rec.Timestamp)
			if err != nil {
				continue
			}
			err = meterdb.UpsertHistoryRecord(&meterdb.MeterDbHistoryRecord{
				Timestamp: ts.Unix(),
				Deciamps:  cmutils.AmpsToDeciamps(rec.CurrentA),
			})
			if err != nil {
				logrus.Warnf("Failed to store history record: %v", err)
				continue
			}
			stored++
		}

		logrus.Infof("Stored %d history records", stored)
		return
	}
}

func fetchHistory(url string) (*feed.HistorySnapshot, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var snapshot feed.HistorySnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
