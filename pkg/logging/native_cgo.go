//go:build cgo_enabled

package logging

import (
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/sirupsen/logrus"
)

// BridgeNative routes FFmpeg log lines into the global sink. FFmpeg lines
// below level are dropped by FFmpeg itself.
func BridgeNative(level astiav.LogLevel) {
	astiav.SetLogLevel(level)
	astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, _, msg string) {
		entry := WithComponent("ffmpeg")
		if c != nil {
			if cl := c.Class(); cl != nil {
				entry = entry.WithField("class", cl.Name())
			}
		}

		msg = strings.TrimSpace(msg)
		switch {
		case l <= astiav.LogLevelError:
			entry.Error(msg)
		case l <= astiav.LogLevelWarning:
			entry.Warn(msg)
		case l <= astiav.LogLevelInfo:
			entry.Info(msg)
		default:
			entry.Log(logrus.DebugLevel, msg)
		}
	})
}

// UnbridgeNative restores FFmpeg's default log output.
func UnbridgeNative() {
	astiav.ResetLogCallback()
}
