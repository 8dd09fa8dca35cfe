package avpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/rtcapi"
)

// Pipeline moves the packets of a demuxer through per stream decoders,
// filter chains and encoders into a muxer. It is driven by one goroutine;
// only AdaptBitrate may be called from others.
type Pipeline struct {
	name    string
	demuxer container.Demuxer
	muxer   container.Muxer
	device  *hwcontext.Device

	configs map[int]StreamConfig
	streams map[int]*stream
	order   []*stream

	packet   *media.Packet
	dropped  int
	finished bool
	closed   bool
}

// NewPipeline opens every configured stream and writes the output header.
// A stream that cannot be set up is reported and skipped; NewPipeline only
// fails when none is left.
func NewPipeline(demuxer container.Demuxer, muxer container.Muxer, options ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{
		name:    "pipeline",
		demuxer: demuxer,
		muxer:   muxer,
		configs: make(map[int]StreamConfig),
		streams: make(map[int]*stream),
		packet:  media.NewPacket(),
	}

	for _, option := range options {
		if err := option(p); err != nil {
			p.releaseDevice()
			return nil, err
		}
	}

	if err := p.setup(); err != nil {
		_ = p.closeStreams()
		p.releaseDevice()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) log() *logrus.Entry {
	return logging.WithComponent("pipeline").WithField("pipeline", p.name)
}

func (p *Pipeline) setup() error {
	infos := p.demuxer.Streams()
	known := make(map[int]container.StreamInfo, len(infos))
	for _, info := range infos {
		known[info.Index] = info
	}

	indices := make([]int, 0, len(p.configs))
	for index := range p.configs {
		if _, ok := known[index]; !ok {
			return fmt.Errorf("stream %d not in input: %w", index, ErrUnknownStream)
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)

	for _, index := range indices {
		s := &stream{
			index:  index,
			info:   known[index],
			config: p.configs[index],
			muxer:  p.muxer,
			device: p.device,
		}
		p.streams[index] = s
		p.order = append(p.order, s)

		if err := s.setup(); err != nil {
			s.fail(fmt.Errorf("setting up stream %d: %w", index, err))
			continue
		}
		s.log().WithFields(logrus.Fields{
			"output":  s.out,
			"copy":    s.copying(),
			"filter":  s.config.Filter,
			"encoder": s.config.Encoder,
		}).Info("stream ready")
	}

	if len(p.order) == 0 {
		return ErrNoStreams
	}
	if p.allFailed() {
		return fmt.Errorf("%w: %w", ErrAllFailed, p.order[0].err)
	}

	if err := p.muxer.WriteHeader(); err != nil {
		return fmt.Errorf("%w: writing header: %w", ErrMuxer, err)
	}
	return nil
}

func (p *Pipeline) allFailed() bool {
	for _, s := range p.order {
		if !s.failed() {
			return false
		}
	}
	return true
}

// Step moves one packet through its stream. It returns io.EOF once the
// input is exhausted; Finish must then be called to flush the stages.
func (p *Pipeline) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed || p.finished {
		return fmt.Errorf("step on finished pipeline: %w", ErrInvalidState)
	}

	if err := p.demuxer.ReadPacket(p.packet); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("reading packet: %w", err)
	}

	// empty payloads would read as end of stream to the decoder
	s, ok := p.streams[p.packet.StreamIndex]
	if !ok || s.failed() || p.packet.IsEmpty() {
		p.dropped++
		return nil
	}

	if err := s.handlePacket(p.packet); err != nil {
		if errors.Is(err, ErrMuxer) {
			return err
		}
		s.fail(err)
		if p.allFailed() {
			return fmt.Errorf("%w: %w", ErrAllFailed, err)
		}
	}
	return nil
}

// Run processes the whole input and finishes the output. Cancelling ctx
// stops it between two packets without writing the trailer.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log().Info("running")
	for {
		err := p.Step(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return p.Finish()
		}
		return err
	}
}

// Finish drains every stream, then writes the trailer.
func (p *Pipeline) Finish() error {
	if p.closed || p.finished {
		return fmt.Errorf("finishing twice: %w", ErrInvalidState)
	}
	p.finished = true

	for _, s := range p.order {
		if s.failed() {
			continue
		}
		if err := s.drain(); err != nil {
			if errors.Is(err, ErrMuxer) {
				return err
			}
			s.fail(fmt.Errorf("draining stream %d: %w", s.index, err))
		}
	}
	if p.allFailed() {
		return ErrAllFailed
	}

	if err := p.muxer.WriteTrailer(); err != nil {
		return fmt.Errorf("%w: writing trailer: %w", ErrMuxer, err)
	}

	fields := logrus.Fields{"dropped": p.dropped}
	for _, s := range p.order {
		fields[fmt.Sprintf("stream_%d_out", s.index)] = s.stats.PacketsOut
	}
	p.log().WithFields(fields).Info("finished")
	return nil
}

// Seek moves the input to ts, in the time base of streamIndex, and drops
// whatever the decoders and chains still buffered.
func (p *Pipeline) Seek(streamIndex int, ts int64) error {
	if p.closed || p.finished {
		return fmt.Errorf("seek on finished pipeline: %w", ErrInvalidState)
	}
	if err := p.demuxer.Seek(streamIndex, ts); err != nil {
		return err
	}

	for _, s := range p.order {
		if s.failed() {
			continue
		}
		if err := s.flush(); err != nil {
			s.fail(fmt.Errorf("flushing stream %d: %w", s.index, err))
		}
	}
	p.log().WithFields(logrus.Fields{"stream": streamIndex, "ts": ts}).Debug("seeked")
	if p.allFailed() {
		return ErrAllFailed
	}
	return nil
}

// AdaptBitrate asks the encoder of stream index to move to bps. The change
// applies before the next frame is encoded, and only when the stream has
// bitrate control and the change is large enough.
func (p *Pipeline) AdaptBitrate(index int, bps int64) error {
	s, ok := p.streams[index]
	if !ok {
		return fmt.Errorf("stream %d: %w", index, ErrUnknownStream)
	}
	if s.config.BitrateControl == nil {
		return fmt.Errorf("stream %d has no bitrate control: %w", index, ErrInvalidState)
	}
	if bps <= 0 {
		return fmt.Errorf("bitrate %d: %w", bps, media.ErrRange)
	}
	s.bitrate.Store(bps)
	return nil
}

// BitrateCallback adapts AdaptBitrate for rtcapi.BWEController.Subscribe.
func (p *Pipeline) BitrateCallback(index int) rtcapi.UpdateBitrateCallBack {
	return func(bps int64) error {
		return p.AdaptBitrate(index, bps)
	}
}

// Stats returns the counters of every configured stream by input index.
func (p *Pipeline) Stats() map[int]StreamStats {
	stats := make(map[int]StreamStats, len(p.order))
	for _, s := range p.order {
		stats[s.index] = s.stats
	}
	return stats
}

// Dropped counts packets of streams that are not processed.
func (p *Pipeline) Dropped() int {
	return p.dropped
}

func (p *Pipeline) Name() string {
	return p.name
}

// Close releases every stage and the demuxer. The muxer belongs to the
// caller.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	errs := []error{p.closeStreams(), p.demuxer.Close()}
	p.releaseDevice()
	return errors.Join(errs...)
}

func (p *Pipeline) closeStreams() error {
	var errs []error
	for _, s := range p.order {
		errs = append(errs, s.close())
	}
	return errors.Join(errs...)
}

func (p *Pipeline) releaseDevice() {
	if p.device != nil {
		_ = p.device.Release()
		p.device = nil
	}
}
