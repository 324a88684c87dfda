package logger

import (
	"os"

	"github.com/charmbracelet/log"
)

// Setup configures the package-level logger used by the library packages.
// Debug mode adds timestamps and caller info, otherwise only warnings show.
func Setup(debug bool) {
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
		log.SetReportCaller(true)
		return
	}
	log.SetLevel(log.WarnLevel)
	log.SetReportTimestamp(false)
	log.SetReportCaller(false)
}

// Default creates a logger without timestamps that follows the global level.
func Default(prefix string) *log.Logger {
	return NewWithConfig(prefix, log.GetLevel(), false, false, log.TextFormatter)
}
