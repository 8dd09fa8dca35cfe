// Package logging holds the process-wide log sink shared by every avpipe
// component. The sink is set once at startup with SetLogger and read on every
// log call, so swapping it takes effect immediately. Tests that install their
// own sink must call Reset when done.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mux  sync.RWMutex
	sink = newDefaultLogger()
)

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLogger installs l as the global sink. A nil logger restores the default.
func SetLogger(l *logrus.Logger) {
	mux.Lock()
	defer mux.Unlock()

	if l == nil {
		l = newDefaultLogger()
	}
	sink = l
}

// Logger returns the current global sink.
func Logger() *logrus.Logger {
	mux.RLock()
	defer mux.RUnlock()

	return sink
}

// Reset restores the default sink.
func Reset() {
	SetLogger(nil)
}

// SetLevel changes the level of the current sink.
func SetLevel(level logrus.Level) {
	Logger().SetLevel(level)
}

// Discard installs a sink that drops everything. Mostly useful in tests.
func Discard() {
	l := logrus.New()
	l.SetOutput(io.Discard)
	SetLogger(l)
}

// WithComponent returns an entry tagged with the component name.
func WithComponent(name string) *logrus.Entry {
	return Logger().WithField("component", name)
}
