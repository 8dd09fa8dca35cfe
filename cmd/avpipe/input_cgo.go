//go:build cgo_enabled

package main

import (
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe"
	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/logging"
)

func bridgeNativeLogs(level logrus.Level) {
	native := astiav.LogLevelWarning
	if level >= logrus.DebugLevel {
		native = astiav.LogLevelVerbose
	}
	logging.BridgeNative(native)
}

func openFormatInput(config avpipe.InputConfig) (container.Demuxer, error) {
	var options []container.DemuxerOption
	switch {
	case strings.HasPrefix(config.Path, "rtsp://"):
		options = append(options, container.WithRTSPInputOption)
	case config.Format == "alsa":
		options = append(options, container.WithAlsaInputFormatOption)
	case config.Format == "avfoundation":
		options = append(options, container.WithAvFoundationInputFormatOption)
	case config.Format != "":
		options = append(options, container.WithInputFormat(config.Format))
	}
	for key, value := range config.Options {
		options = append(options, container.WithInputOption(key, value))
	}
	return container.NewFormatDemuxer(config.Path, options...)
}
