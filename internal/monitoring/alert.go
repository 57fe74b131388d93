package monitoring

import (
	"github.com/rs/zerolog/log"
)

// Alert logs a provisioning or isolation alert. Wire to a real alerting
// channel in deployment; the structured fields are stable.
func Alert(message string, labels map[string]string) {
	log.Error().
		Str("alert", message).
		Fields(labels).
		Msg("ALERT: tenant subsystem issue detected")
}
