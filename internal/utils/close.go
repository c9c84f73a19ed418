package utils

import (
	"io"

	"github.com/MrSnakeDoc/fleet/internal/logger"
)

// CloseFunc adapts a func() error to io.Closer.
type CloseFunc func() error

func (f CloseFunc) Close() error { return f() }

// Close closes c and ignores any error.
// Use for best-effort cleanup in defer where error handling is not critical.
func Close(c io.Closer) {
	_ = c.Close()
}

// MustClose closes c and logs any error under the given component name.
func MustClose(c io.Closer, name string, log logger.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close",
			logger.String("component", name),
			logger.Error(err))
		return
	}
	log.Info("closed cleanly", logger.String("component", name))
}
