package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/openenergytools/owl_current_meter/pkg/pathing"
)

var (
	ActiveMeterAPIConfig      *MeterAPIConfig
	ActiveMeterRecorderConfig *MeterRecorderConfig
)

func LoadMeterAPIConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "meter_api.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &MeterAPIConfig{
			SerialDevice:            "/dev/ttyUSB0",
			Baudrate:                0, // 0 = use the meter profile default
			MeterModel:              "CM160",
			ScanIntervalSeconds:     30,
			ListenAddress:           "0.0.0.0",
			ListenPort:              9041,
			SolarInverterIp:         "",
			SolarInverterModbusPort: 0,
			LogLevel:                "info",
		}
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		toml.NewEncoder(cfgFile).Encode(cfg)
		ActiveMeterAPIConfig = cfg
		return nil
	}

	// Load existing config
	var config MeterAPIConfig
	_, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return err
	}
	ActiveMeterAPIConfig = &config
	return nil
}

func LoadMeterRecorderConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "meter_recorder.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &MeterRecorderConfig{
			MeterAPIHost: "localhost:9041",
			MainsVoltage: 230,
			LogLevel:     "info",
		}
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		toml.NewEncoder(cfgFile).Encode(cfg)
		ActiveMeterRecorderConfig = cfg
		return nil
	}

	// Load existing config
	var config MeterRecorderConfig
	_, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return err
	}
	ActiveMeterRecorderConfig = &config
	return nil
}
