package meterdb

func InsertLiveCurrentReading(reading *MeterDbLiveCurrentReading) error {
	db := GetDB()

	_, err := db.Exec(
		"INSERT INTO live_current_readings (timestamp, deciamps) "+
			"VALUES (?, ?)",
		reading.Timestamp,
		reading.Deciamps,
	)
	if err != nil {
		return err
	}
	return nil
}

// UpsertHistoryRecord stores one replayed history record. The device
// re-sends its full log on every connect, so duplicates are expected.
func UpsertHistoryRecord(record *MeterDbHistoryRecord) error {
	db := GetDB()

	_, err := db.Exec(
		"INSERT OR REPLACE INTO history_records (timestamp, deciamps) "+
			"VALUES (?, ?)",
		record.Timestamp,
		record.Deciamps,
	)
	if err != nil {
		return err
	}
	return nil
}

func GetLatestLiveCurrentReading() (*MeterDbLiveCurrentReading, error) {
	db := GetDB()

	var reading MeterDbLiveCurrentReading
	err := db.QueryRow(
		"SELECT timestamp, deciamps FROM live_current_readings "+
			"ORDER BY timestamp DESC LIMIT 1",
	).Scan(&reading.Timestamp, &reading.Deciamps)
	if err != nil {
		return nil, err
	}
	return &reading, nil
}
