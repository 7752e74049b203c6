// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger.
var Log = logrus.New()

func init() {
	Log.Out = os.Stderr
	Log.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
}

// SetDebug raises the logger to debug level.
func SetDebug(debug bool) {
	if debug {
		Log.SetLevel(logrus.DebugLevel)
		return
	}
	Log.SetLevel(logrus.InfoLevel)
}

// ForConn returns a logger scoped to a single client connection.
func ForConn(fd int) *logrus.Entry {
	return Log.WithField("fd", fd)
}
