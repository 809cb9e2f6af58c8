package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openenergytools/owl_current_meter/pkg/config"
)

func TestEstimatedWattsUsesConfiguredMainsVoltage(t *testing.T) {
	prev := config.ActiveMeterRecorderConfig
	t.Cleanup(func() { config.ActiveMeterRecorderConfig = prev })

	config.ActiveMeterRecorderConfig = &config.MeterRecorderConfig{MainsVoltage: 230}
	assert.Equal(t, 805.0, estimatedWatts(3.5))

	config.ActiveMeterRecorderConfig = &config.MeterRecorderConfig{MainsVoltage: 120}
	assert.Equal(t, 420.0, estimatedWatts(3.5))
}
