//go:build no_mqtt

package main

import (
	"log/slog"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/daemon"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *daemon.Daemon, _ *config.Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
