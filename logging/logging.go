// Package logging configures the op/go-logging backend used throughout
// raknetdp: a leveled, module-tagged logger matching the style katzenpost
// wires its own subsystems with.
package logging

import (
	"os"

	logging "gopkg.in/op/go-logging.v1"
)

var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} %{module}%{color:reset}: %{message}`,
)

// Init installs a leveled, color-coded stderr backend at level as the
// go-logging default backend. Callers in cmd/ call this once at
// startup; library code only ever calls GetLogger.
func Init(level string) error {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, format)
	leveled := logging.AddModuleLevel(formatted)
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return err
	}
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
	return nil
}

// GetLogger returns a module-scoped logger. Safe to call before Init;
// go-logging defaults to a stderr backend at DEBUG until Init overrides it.
func GetLogger(module string) *logging.Logger {
	return logging.MustGetLogger(module)
}
