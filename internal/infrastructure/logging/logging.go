// Package logging constructs the zap logger used across the engine and
// its detectors, mirroring the teacher's convention of building one
// *zap.Logger at startup and threading it into every component
// constructor rather than reaching for the global logger.
package logging

import "go.uber.org/zap"

// New builds a production zap logger for environment "production", or
// a development logger (console-friendly, debug-enabled) otherwise.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
