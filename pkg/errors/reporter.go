package errors

import (
	"os"
	"sync"

	"github.com/certifi/gocertifi"
	"github.com/getsentry/sentry-go"
	"moff.io/moff-wallet/pkg/log"
)

var (
	reportersMu sync.RWMutex
	reporters   []Reporter
)

// errors are not reported while this variable is set
const debugMode = "DEBUG"

func init() {
	if os.Getenv(debugMode) == "" {
		log.Info("Env DEBUG not set, report errors enabled.")
	} else {
		log.Info("Env DEBUG set, report errors disabled.")
	}
}

// Reporter receives errors from the *AndReport helpers.
type Reporter interface {
	Report(error)
}

// RegisterReporter adds r to the reporters notified by the *AndReport helpers.
func RegisterReporter(r Reporter) {
	if r == nil {
		return
	}
	reportersMu.Lock()
	defer reportersMu.Unlock()
	reporters = append(reporters, r)
}

func resetReporters() {
	reportersMu.Lock()
	defer reportersMu.Unlock()
	reporters = nil
}

func report(err error) {
	if err == nil || os.Getenv(debugMode) != "" {
		return
	}
	reportersMu.RLock()
	rs := make([]Reporter, len(reporters))
	copy(rs, reporters)
	reportersMu.RUnlock()
	for _, r := range rs {
		r.Report(err)
	}
}

type sentryReporter struct {
}

func (s *sentryReporter) Report(err error) {
	sentry.CaptureException(err)
}

// NewSentryReporter registers a sentry reporter. An empty DSN skips it.
// Nothing is reported while DEBUG is set.
func NewSentryReporter(sentryDSN string) error {
	if sentryDSN == "" {
		log.Warn("empty DSN found, skipping sentry reporter initialization.")
		return nil
	}
	rootCAs, err := gocertifi.CACerts()
	if err != nil {
		return Wrap(err, "init sentry CA")
	}
	err = sentry.Init(sentry.ClientOptions{
		Dsn:     sentryDSN,
		CaCerts: rootCAs,
	})
	if err != nil {
		return Wrap(err, "init sentry")
	}
	log.Info("sentry error reporter initialized.")
	RegisterReporter(&sentryReporter{})
	return nil
}
