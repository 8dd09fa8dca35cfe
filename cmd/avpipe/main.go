// Command avpipe runs one pipeline described by a JSON file.
//
//	avpipe -config pipeline.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe"
	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/logging"
)

func main() {
	configPath := flag.String("config", "pipeline.json", "pipeline description")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.SetLevel(level)
	bridgeNativeLogs(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logging.WithComponent("main").WithError(err).Error("pipeline failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	config, err := avpipe.LoadConfig(path)
	if err != nil {
		return err
	}
	options, err := config.ToOptions()
	if err != nil {
		return err
	}

	demuxer, err := openInput(config.Input)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}

	out, err := os.Create(config.Output.Path)
	if err != nil {
		_ = demuxer.Close()
		return err
	}
	defer out.Close()

	muxer, err := container.NewRawMuxer(container.FileIO(out))
	if err != nil {
		_ = demuxer.Close()
		return err
	}

	pipeline, err := avpipe.NewPipeline(demuxer, muxer, options...)
	if err != nil {
		_ = demuxer.Close()
		return err
	}
	defer pipeline.Close()

	if err := pipeline.Run(ctx); err != nil {
		return err
	}

	log := logging.WithComponent("main")
	for index, stats := range pipeline.Stats() {
		entry := log.WithFields(logrus.Fields{
			"stream":      index,
			"packets_in":  stats.PacketsIn,
			"decoded":     stats.FramesDecoded,
			"filtered":    stats.FramesFiltered,
			"packets_out": stats.PacketsOut,
		})
		if stats.Err != nil {
			entry.WithError(stats.Err).Warn("stream failed")
			continue
		}
		entry.Info("stream done")
	}
	log.WithField("bytes", muxer.Bytes()).Info("output written")
	return nil
}

var errUnknownContainer = errors.New("unknown input container")

func openInput(config avpipe.InputConfig) (container.Demuxer, error) {
	switch config.Container {
	case "", "raw":
		return openRawInput(config)
	case "ffmpeg":
		return openFormatInput(config)
	default:
		return nil, fmt.Errorf("%q: %w", config.Container, errUnknownContainer)
	}
}

func openRawInput(config avpipe.InputConfig) (container.Demuxer, error) {
	info, err := config.StreamInfo()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(config.Path)
	if err != nil {
		return nil, err
	}

	var options []container.RawDemuxerOption
	if config.PacketSamples > 0 {
		options = append(options, container.WithPacketSamples(config.PacketSamples))
	}
	d, err := container.NewRawDemuxer(container.FileIO(f), info, options...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileDemuxer{Demuxer: d, file: f}, nil
}

// fileDemuxer closes the file behind a raw demuxer.
type fileDemuxer struct {
	container.Demuxer
	file *os.File
}

func (d *fileDemuxer) Close() error {
	return errors.Join(d.Demuxer.Close(), d.file.Close())
}
