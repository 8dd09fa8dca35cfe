//go:build !cgo_enabled

package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe"
	"github.com/harshabose/avpipe/pkg/container"
)

func openFormatInput(avpipe.InputConfig) (container.Demuxer, error) {
	return nil, fmt.Errorf("ffmpeg input needs the cgo_enabled build tag: %w", errUnknownContainer)
}

func bridgeNativeLogs(logrus.Level) {}
