// Optional companion source: reads live production watts from a solar
// inverter over Modbus TCP so the API can serve consumption and
// production side by side. Not part of the serial protocol core.
package solarinverter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	probing "github.com/prometheus-community/pro-bing"

	"github.com/openenergytools/owl_current_meter/pkg/config"
)

var (
	ErrModbusNotConfigured = fmt.Errorf("modbus not configured")
	ErrModbusReadFailed    = fmt.Errorf("modbus read failed")
)

// Active power register on the inverter (two 16-bit registers, int32 W).
const activePowerRegister = 32080

var (
	solarPowerMu      sync.Mutex
	lastSolarReadWatt int32 = 0
	lastSolarReadTime time.Time
)

// IsConfigured checks if the inverter endpoint is set.
// This feature is optional, empty values as config are acceptable.
func IsConfigured() bool {
	return config.ActiveMeterAPIConfig.SolarInverterIp != "" &&
		config.ActiveMeterAPIConfig.SolarInverterModbusPort != 0
}

// ReadProduction returns the inverter's active power in watts.
// Reads are cached for 10 seconds to avoid spamming the poor inverter.
func ReadProduction() (int32, error) {
	if !IsConfigured() {
		return 0, ErrModbusNotConfigured
	}

	solarPowerMu.Lock()
	defer solarPowerMu.Unlock()
	if lastSolarReadTime.After(time.Now().Add(-10 * time.Second)) {
		return lastSolarReadWatt, nil
	}

	host := config.ActiveMeterAPIConfig.SolarInverterIp
	port := config.ActiveMeterAPIConfig.SolarInverterModbusPort

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(2 * time.Second)
		}

		// Ping check before attempting modbus connection
		if ok, _, err := ping(host); !ok || err != nil {
			lastErr = fmt.Errorf("ping failed on attempt %d: %w", attempt+1, err)
			continue
		}

		handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", host, port))
		handler.Timeout = 10 * time.Second
		handler.SlaveId = 0

		if err := handler.Connect(); err != nil {
			lastErr = fmt.Errorf("connection failed on attempt %d: %w", attempt+1, err)
			handler.Close()
			continue
		}

		client := modbus.NewClient(handler)
		result, err := client.ReadHoldingRegisters(activePowerRegister, 2)
		handler.Close()

		if err != nil {
			lastErr = fmt.Errorf("read power failed on attempt %d: %w", attempt+1, err)
			continue
		}
		if len(result) < 4 {
			lastErr = fmt.Errorf("short register read on attempt %d: %d bytes", attempt+1, len(result))
			continue
		}

		power := int32(result[0])<<24 | int32(result[1])<<16 | int32(result[2])<<8 | int32(result[3])
		lastSolarReadWatt = power
		lastSolarReadTime = time.Now()
		return power, nil
	}

	return 0, errors.Join(ErrModbusReadFailed, lastErr)
}

func ping(host string) (bool, time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, 0, err
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false) // UDP-based, no root needed

	err = pinger.Run()
	if err != nil {
		return false, 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return true, stats.AvgRtt, nil
	}

	return false, 0, fmt.Errorf("no response")
}
