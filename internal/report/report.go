// Package report forwards errors to Honeybadger when it is configured.
package report

import (
	"os"

	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/sirupsen/logrus"

	"github.com/bassista/go_devwatch/internal/logger"
)

// Notifier is the subset of *honeybadger.Client used here.
type Notifier interface {
	Notify(err interface{}, extra ...interface{}) (string, error)
}

// Reporter is a no-op unless it has a notifier.
type Reporter struct {
	notifier Notifier
	log      *logrus.Entry
}

// FromEnv configures the default Honeybadger client from HONEYBADGER_API_KEY
// and GO_ENV. Without an API key the returned reporter is disabled.
func FromEnv() *Reporter {
	log := logger.WithComponent("report")

	apiKey := os.Getenv("HONEYBADGER_API_KEY")
	if apiKey == "" {
		log.Info("Honeybadger is not active. To enable error reporting, set the HONEYBADGER_API_KEY environment variable.")
		return &Reporter{log: log}
	}

	honeybadger.Configure(honeybadger.Configuration{
		APIKey: apiKey,
		Env:    os.Getenv("GO_ENV"),
	})
	log.Info("Honeybadger error reporting is enabled.")
	return &Reporter{notifier: honeybadger.DefaultClient, log: log}
}

// New returns a reporter sending to n. A nil n disables reporting.
func New(n Notifier) *Reporter {
	return &Reporter{notifier: n, log: logger.WithComponent("report")}
}

// Enabled reports whether notifications are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.notifier != nil
}

// Notify sends err with optional honeybadger.Context, honeybadger.Tags or *http.Request extras.
func (r *Reporter) Notify(err interface{}, extra ...interface{}) {
	if !r.Enabled() {
		return
	}
	if _, nerr := r.notifier.Notify(err, extra...); nerr != nil {
		r.log.Warnf("failed to notify Honeybadger: %v", nerr)
	}
}

// RefreshFailed reports a failed refresh cycle of device.
func (r *Reporter) RefreshFailed(device string, err error) {
	r.Notify(err, honeybadger.Context{"device": device}, honeybadger.Tags{"refresh", "device"})
}

// Flush waits for queued notifications. Call before exiting.
func (r *Reporter) Flush() {
	if r.Enabled() {
		honeybadger.Flush()
	}
}
