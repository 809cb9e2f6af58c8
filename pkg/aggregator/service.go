// Aggregates raw live current readings into hourly and daily tables
// and cleans up raw data once it is covered by aggregates.
package aggregator

import (
	"database/sql"
	"time"

	"github.com/openenergytools/owl_current_meter/pkg/meterdb"
	"github.com/sirupsen/logrus"
)

// roundToHourStart returns the Unix timestamp of the start of the hour for the given time
func roundToHourStart(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
}

// roundToDayStart returns the Unix timestamp of the start of the day for the given time
func roundToDayStart(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// getHourEnd returns the Unix timestamp of the last second of the hour (next hour start - 1)
func getHourEnd(hourStart int64) int64 {
	return time.Unix(hourStart, 0).Add(time.Hour).Unix() - 1
}

// getDayEnd returns the Unix timestamp of the last second of the day (next day start - 1)
func getDayEnd(dayStart int64) int64 {
	return time.Unix(dayStart, 0).AddDate(0, 0, 1).Unix() - 1
}

// aggregateWindow computes avg/peak current over a window of raw
// readings and upserts the result into the given aggregate table.
func aggregateWindow(db *sql.DB, table string, startTime, endTime int64) error {
	query := `
		SELECT
			AVG(deciamps) as avg_deciamps,
			MAX(deciamps) as peak_deciamps,
			COUNT(*) as count
		FROM live_current_readings
		WHERE timestamp >= ? AND timestamp <= ?
	`

	var avgDeciamps sql.NullFloat64
	var peakDeciamps sql.NullInt64
	var sampleCount uint32

	err := db.QueryRow(query, startTime, endTime).Scan(&avgDeciamps, &peakDeciamps, &sampleCount)
	if err != nil {
		return err
	}

	// Only insert if we have data
	if sampleCount == 0 || !avgDeciamps.Valid {
		return nil
	}

	insertQuery := `
		INSERT OR REPLACE INTO ` + table + `
		(start_time, avg_deciamps, peak_deciamps, sample_count)
		VALUES (?, ?, ?, ?)
	`

	_, err = db.Exec(insertQuery,
		startTime,
		uint32(avgDeciamps.Float64),
		uint32(peakDeciamps.Int64),
		sampleCount,
	)
	return err
}

func aggregateCurrentHourly(db *sql.DB, hourStart int64) error {
	return aggregateWindow(db, "aggregate_current_hourly", hourStart, getHourEnd(hourStart))
}

func aggregateCurrentDaily(db *sql.DB, dayStart int64) error {
	return aggregateWindow(db, "aggregate_current_daily", dayStart, getDayEnd(dayStart))
}

// cleanupOldData removes raw readings older than 3 months if we have aggregated them
func cleanupOldData(db *sql.DB, now time.Time) error {
	threeMonthsAgo := now.UTC().AddDate(0, -3, 0)
	cutoffTimestamp := threeMonthsAgo.Unix()

	// Check the last hourly aggregate to see if we've aggregated recent enough data
	var lastAggregateHour sql.NullInt64
	err := db.QueryRow("SELECT MAX(start_time) FROM aggregate_current_hourly").Scan(&lastAggregateHour)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}

	// Only clean up if aggregation has caught up past the cutoff
	if !lastAggregateHour.Valid || lastAggregateHour.Int64 < cutoffTimestamp {
		return nil
	}

	_, err = db.Exec("DELETE FROM live_current_readings WHERE timestamp < ?", cutoffTimestamp)
	if err != nil {
		return err
	}

	logrus.Infof("Cleaned up raw readings older than %s", threeMonthsAgo.Format(time.RFC3339))
	return nil
}

// AggregateAndCleanup performs all aggregation and cleanup tasks
// This is the main function to call for data aggregation
func AggregateAndCleanup() error {
	db := meterdb.GetDB()
	now := time.Now().UTC()

	// Aggregate the previous hour (current hour is still ongoing)
	previousHour := now.Add(-time.Hour)
	hourStart := roundToHourStart(previousHour)

	logrus.Infof("Aggregating data for hour starting at %s", time.Unix(hourStart, 0).Format(time.RFC3339))

	if err := aggregateCurrentHourly(db, hourStart); err != nil {
		logrus.Warnf("Error aggregating hourly current: %v", err)
		return err
	}

	// Aggregate the previous day if it's a new day
	if now.Hour() == 0 {
		previousDay := now.AddDate(0, 0, -1)
		dayStart := roundToDayStart(previousDay)

		logrus.Infof("Aggregating data for day starting at %s", time.Unix(dayStart, 0).Format(time.RFC3339))

		if err := aggregateCurrentDaily(db, dayStart); err != nil {
			logrus.Warnf("Error aggregating daily current: %v", err)
			return err
		}
	}

	if err := cleanupOldData(db, now); err != nil {
		logrus.Warnf("Error cleaning up old data: %v", err)
		return err
	}

	logrus.Info("Aggregation and cleanup completed")
	return nil
}

// GetAggregates returns stored aggregates for a timeframe, newest
// first. Read-side API for services consuming the shared database.
func GetAggregates(timeframe Timeframe, limit int) ([]AggregateData, error) {
	db := meterdb.GetDB()

	table := "aggregate_current_hourly"
	if timeframe == TimeframeDaily {
		table = "aggregate_current_daily"
	}

	rows, err := db.Query(
		"SELECT start_time, avg_deciamps, peak_deciamps, sample_count FROM "+table+
			" ORDER BY start_time DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AggregateData
	for rows.Next() {
		data := AggregateData{Timeframe: timeframe}
		err := rows.Scan(
			&data.StartTime,
			&data.Aggregate.AvgDeciamps,
			&data.Aggregate.PeakDeciamps,
			&data.Aggregate.SampleCount,
		)
		if err != nil {
			return nil, err
		}
		data.Aggregate.StartTime = data.StartTime
		out = append(out, data)
	}
	return out, rows.Err()
}

// StartScheduler runs AggregateAndCleanup once shortly after startup
// and then at every hour boundary. Blocks; run in a goroutine.
func StartScheduler() {
	time.Sleep(time.Minute)
	if err := AggregateAndCleanup(); err != nil {
		logrus.Warnf("Startup aggregation failed: %v", err)
	}

	for {
		now := time.Now().UTC()
		nextHour := now.Truncate(time.Hour).Add(time.Hour)
		time.Sleep(time.Until(nextHour.Add(time.Minute)))

		if err := AggregateAndCleanup(); err != nil {
			logrus.Warnf("Scheduled aggregation failed: %v", err)
		}
	}
}
