package config

type MeterAPIConfig struct {
	SerialDevice string `toml:"serial_device"`
	// Baudrate overrides the device profile default when non-zero.
	Baudrate                uint   `toml:"baudrate"`
	MeterModel              string `toml:"meter_model"`
	ScanIntervalSeconds     int    `toml:"scan_interval_seconds"`
	ListenAddress           string `toml:"listen_address"`
	ListenPort              int    `toml:"listen_port"`
	SolarInverterIp         string `toml:"solar_inverter_ip"`
	SolarInverterModbusPort int    `toml:"solar_inverter_modbus_port"`
	LogLevel                string `toml:"log_level"`
}

type MeterRecorderConfig struct {
	MeterAPIHost string `toml:"meter_api_host"`
	// Nominal mains voltage used to estimate watts from clamp amps.
	MainsVoltage float64 `toml:"mains_voltage"`
	LogLevel     string  `toml:"log_level"`
}
