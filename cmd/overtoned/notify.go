package main

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"overtone/internal/bus"
	"overtone/internal/config"
	"overtone/internal/export"
)

// newExportNotifier fans export outcomes out to the surfaces via the
// exportStatus channel and, when enabled, to the desktop notification
// service.
func newExportNotifier(b *bus.Bus, cfg *config.Config, log *zap.Logger) export.Notifier {
	return func(level, message string) {
		b.Publish(bus.ChannelExportStatus, bus.ExportStatus{Level: level, Message: message})

		if !cfg.Notifications.Enabled {
			return
		}
		title := "Overtone"
		if level == "error" {
			title = "Overtone export failed"
		}
		if err := beeep.Notify(title, message, ""); err != nil {
			log.Debug("desktop notification failed", zap.Error(err))
		}
	}
}
