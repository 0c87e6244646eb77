package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	Logger.SetLevel(logrus.InfoLevel)

	// Override from env, e.g., LOG_LEVEL=debug
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		_ = ApplyLevel(level)
	}
}

// WithComponent adds a component field to the logger
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}

// WithDevice adds both a component and a device field, used by the per-device
// polling components so interleaved output from several devices stays readable.
func WithDevice(component, device string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{
		"component": component,
		"device":    device,
	})
}

// ApplyLevel parses level (case-insensitive) and sets it on Logger.
// The current level is kept when level is not a valid logrus level.
func ApplyLevel(level string) error {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	Logger.SetLevel(parsed)
	return nil
}
