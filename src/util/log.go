// log.go constructs the pipeline logger. Assembly is the only thing
// the compiler writes to its output stream; all diagnostics and
// statistics go through this logger on stderr.

package util

import (
	"go.uber.org/zap"
)

// NewLogger returns the logger used throughout the pipeline. Verbose
// mode builds a zap development logger on stderr; otherwise a no-op
// logger is returned so nothing interleaves with emitted code.
func NewLogger(opt Options) (*zap.Logger, error) {
	if !opt.Verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
