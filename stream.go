package avpipe

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/fifo"
	"github.com/harshabose/avpipe/pkg/filter"
	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

// StreamStats counts what went through one stream.
type StreamStats struct {
	PacketsIn      int
	FramesDecoded  int
	FramesFiltered int
	PacketsOut     int
	Rebuilds       int
	Err            error
}

// stream owns the stages of one input stream: decoder, filter chain, sample
// queue and encoder, or nothing at all when packets are copied.
type stream struct {
	index  int
	out    int
	info   container.StreamInfo
	config StreamConfig
	muxer  container.Muxer
	device *hwcontext.Device

	decoder *transcode.Decoder
	builder *filter.Builder
	chain   *filter.Chain
	source  media.Format

	queue     *fifo.Queue
	frameSize int

	encoder  *transcode.Encoder
	encoders *transcode.EncoderBuilder
	format   media.Format
	bitrate  atomic.Int64

	frame    *media.Frame
	filtered *media.Frame
	packet   *media.Packet

	stats StreamStats
	err   error
}

func (s *stream) log() *logrus.Entry {
	return logging.WithComponent("pipeline").WithFields(logrus.Fields{
		"stream": s.index,
		"codec":  s.info.Codec,
	})
}

func (s *stream) copying() bool {
	return s.config.Encoder == ""
}

// setup opens the decoder, builds the filter chain for the advertised format,
// opens the encoder on the chain's output format and registers the output
// stream with the muxer.
func (s *stream) setup() error {
	s.frame = media.NewFrame()
	s.filtered = media.NewFrame()
	s.packet = media.NewPacket()

	if s.copying() {
		out, err := s.muxer.AddStream(s.info)
		if err != nil {
			return err
		}
		s.out = out
		return nil
	}

	name := s.config.Decoder
	if name == "" {
		name = s.info.Codec
	}
	decoder, err := transcode.NewDecoder(name,
		transcode.WithFormat(s.info.Format),
		transcode.WithFrameRate(s.info.FrameRate),
		transcode.WithCodecOptions(s.config.DecoderOptions),
		transcode.WithThreadCount(s.config.Threads),
	)
	if err != nil {
		return err
	}
	s.decoder = decoder
	if s.device != nil {
		if err := decoder.SetHardwareDevice(s.device); err != nil {
			return err
		}
	}
	if err := decoder.Open(); err != nil {
		return err
	}

	var graphOptions []filter.GraphOption
	if s.config.FilterThreads > 0 {
		graphOptions = append(graphOptions, filter.WithThreads(s.config.FilterThreads))
	}
	s.builder = filter.NewBuilder(s.config.Filter, graphOptions...)
	if s.config.AutoRotate && s.info.DisplayMatrix != nil {
		s.builder.SetDisplayMatrix(*s.info.DisplayMatrix)
	}
	if err := s.buildChain(s.info.Format); err != nil {
		return err
	}
	s.format = s.chain.Sink.Format()

	if s.config.BitrateControl != nil {
		initial := s.config.BitRate
		if initial == 0 {
			initial = s.config.BitrateControl.MaxBitrate
		}
		s.encoders, err = transcode.NewEncoderBuilder(s.config.Encoder, *s.config.BitrateControl, initial, s.encoderOptions()...)
		if err != nil {
			return err
		}
	}
	if err := s.openEncoder(); err != nil {
		return err
	}

	info := container.StreamInfo{
		Codec:     s.config.Encoder,
		Format:    s.format,
		FrameRate: s.info.FrameRate,
		BitRate:   s.encoder.Config().BitRate,
	}
	info.Format.TimeBase = s.encoder.Config().TimeBase
	out, err := s.muxer.AddStream(info)
	if err != nil {
		return err
	}
	s.out = out
	return nil
}

func (s *stream) encoderOptions() []transcode.ConfigOption {
	options := []transcode.ConfigOption{
		transcode.WithFormat(s.format),
		transcode.WithFrameRate(s.info.FrameRate),
		transcode.WithCodecOptions(s.config.EncoderOptions),
		transcode.WithThreadCount(s.config.Threads),
	}
	if s.config.FrameSize > 0 {
		options = append(options, transcode.WithFrameSize(s.config.FrameSize))
	}
	return options
}

func (s *stream) openEncoder() error {
	var (
		encoder *transcode.Encoder
		err     error
	)
	if s.encoders != nil {
		encoder, err = s.encoders.Build(transcode.WithFormat(s.format))
	} else {
		options := s.encoderOptions()
		if s.config.BitRate > 0 {
			options = append(options, transcode.WithBitRate(s.config.BitRate))
		}
		encoder, err = transcode.NewEncoder(s.config.Encoder, options...)
	}
	if err != nil {
		return err
	}
	if s.device != nil {
		if err := encoder.SetHardwareDevice(s.device); err != nil {
			_ = encoder.Close()
			return err
		}
	}
	if err := encoder.Open(); err != nil {
		_ = encoder.Close()
		return err
	}
	s.encoder = encoder

	if err := s.setupQueue(); err != nil {
		return err
	}
	return nil
}

// setupQueue puts a sample queue in front of encoders that need fixed size
// frames. UseFifo forces the decision either way.
func (s *stream) setupQueue() error {
	s.frameSize = s.encoder.FrameSize()
	use := s.frameSize > 0 && s.format.Type == media.MediaTypeAudio
	if s.config.UseFifo != nil {
		use = *s.config.UseFifo && s.frameSize > 0 && s.format.Type == media.MediaTypeAudio
	}
	if !use {
		s.queue = nil
		return nil
	}
	if s.queue != nil {
		return nil
	}

	q, err := fifo.New(s.format.Audio.SampleFormat, s.format.Audio.Channels(), s.frameSize*4)
	if err != nil {
		return err
	}
	s.queue = q
	s.log().WithField("frame_size", s.frameSize).Debug("sample queue in front of encoder")
	return nil
}

func (s *stream) buildChain(format media.Format) error {
	chain, err := s.builder.Build(filter.SourceParams{Format: format, FrameRate: s.info.FrameRate})
	if err != nil {
		return err
	}
	if s.chain != nil {
		_ = s.chain.Close()
	}
	s.chain = chain
	s.source = format
	return nil
}

// fail records the first error and releases the stream's stages. The stream
// is skipped from then on.
func (s *stream) fail(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	s.stats.Err = err
	s.log().WithError(err).Error("stream failed, skipping it")
	_ = s.close()
}

func (s *stream) failed() bool {
	return s.err != nil
}

// handlePacket runs one demuxed packet through the stream.
func (s *stream) handlePacket(packet *media.Packet) error {
	s.stats.PacketsIn++
	if s.copying() {
		packet.StreamIndex = s.out
		if err := s.muxer.WritePacket(packet); err != nil {
			return fmt.Errorf("%w: %w", ErrMuxer, err)
		}
		s.stats.PacketsOut++
		return nil
	}

	for {
		status, err := s.decoder.SendInput(packet)
		switch status {
		case transcode.StatusAccepted:
			return s.receiveFrames()
		case transcode.StatusBusy:
			if err := s.receiveFrames(); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

// receiveFrames pulls decoded frames until the decoder wants more input.
func (s *stream) receiveFrames() error {
	for {
		status, err := s.decoder.ReceiveOutput(s.frame)
		switch status {
		case transcode.StatusProduced:
			s.stats.FramesDecoded++
			if err := s.filterFrame(s.frame); err != nil {
				return err
			}
		case transcode.StatusNeedsMoreInput, transcode.StatusEnded:
			return nil
		default:
			return err
		}
	}
}

// filterFrame pushes a decoded frame into the chain, rebuilding the chain
// first when the decoder produced another format than the one advertised.
func (s *stream) filterFrame(frame *media.Frame) error {
	format := frame.Format()
	if !sameFrameFormat(format, s.source) {
		s.log().WithFields(logrus.Fields{
			"advertised": s.source.String(),
			"decoded":    format.String(),
		}).Info("rebuilding filter chain for decoded format")
		if format.TimeBase.IsZero() {
			format.TimeBase = s.source.TimeBase
		}
		if err := s.buildChain(format); err != nil {
			return err
		}
		if got := s.chain.Sink.Format(); !sameFrameFormat(got, s.format) {
			return fmt.Errorf("chain now produces %s, encoder opened for %s: %w", got, s.format, media.ErrFormatMismatch)
		}
	}

	if err := s.chain.Source.PushFrame(frame); err != nil {
		return err
	}
	return s.pullFiltered(false)
}

// pullFiltered drains the chain sink into the encoder.
func (s *stream) pullFiltered(final bool) error {
	for {
		ok, err := s.chain.Sink.ReceiveFrame(s.filtered, !final)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.stats.FramesFiltered++
		if err := s.queueFrame(s.filtered); err != nil {
			return err
		}
	}
}

func (s *stream) queueFrame(frame *media.Frame) error {
	if s.queue == nil {
		return s.encode(frame)
	}

	if err := s.queue.Write(frame); err != nil {
		return err
	}
	for s.queue.Size() >= s.frameSize {
		if err := s.encodeQueued(); err != nil {
			return err
		}
	}
	return nil
}

func (s *stream) encodeQueued() error {
	block, err := media.AllocAudioFrame(s.format.Audio, s.frameSize)
	if err != nil {
		return err
	}
	if _, err := s.queue.Read(block, s.frameSize); err != nil {
		return err
	}
	return s.encode(block)
}

// encode sends one frame, rebuilding the encoder first when a bit rate
// change is pending.
func (s *stream) encode(frame *media.Frame) error {
	if err := s.adapt(); err != nil {
		return err
	}

	for {
		status, err := s.encoder.SendInput(frame)
		switch status {
		case transcode.StatusAccepted:
			return s.receivePackets()
		case transcode.StatusBusy:
			if err := s.receivePackets(); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

func (s *stream) receivePackets() error {
	for {
		status, err := s.encoder.ReceiveOutput(s.packet)
		switch status {
		case transcode.StatusProduced:
			if err := s.writePacket(s.packet); err != nil {
				return err
			}
		case transcode.StatusNeedsMoreInput, transcode.StatusEnded:
			return nil
		default:
			return err
		}
	}
}

func (s *stream) writePacket(packet *media.Packet) error {
	packet.StreamIndex = s.out
	if err := s.muxer.WritePacket(packet); err != nil {
		return fmt.Errorf("%w: %w", ErrMuxer, err)
	}
	s.stats.PacketsOut++
	return nil
}

// adapt swaps the encoder for one at the pending bit rate. The old encoder is
// drained into the muxer first so no packet is lost.
func (s *stream) adapt() error {
	if s.encoders == nil {
		return nil
	}
	bps := s.bitrate.Swap(0)
	if bps == 0 || !s.encoders.AdaptBitrate(bps) {
		return nil
	}

	if err := transcode.Drain(s.encoder, s.packet, s.writePacket); err != nil {
		return err
	}
	_ = s.encoder.Close()
	if err := s.openEncoder(); err != nil {
		return err
	}
	s.stats.Rebuilds++
	return nil
}

// drain empties the stream at end of input: the chain, then the sample
// queue, then the encoder.
func (s *stream) drain() error {
	if s.copying() {
		return nil
	}

	if err := transcode.Drain(s.decoder, s.frame, func(f *media.Frame) error {
		s.stats.FramesDecoded++
		return s.filterFrame(f)
	}); err != nil {
		return err
	}

	if err := s.chain.Source.PushFrame(nil); err != nil {
		return err
	}
	if err := s.pullFiltered(true); err != nil {
		return err
	}

	if s.queue != nil && s.queue.Size() > 0 {
		// the last block may be short
		n := s.queue.Size()
		block, err := media.AllocAudioFrame(s.format.Audio, n)
		if err != nil {
			return err
		}
		if _, err := s.queue.Read(block, n); err != nil {
			return err
		}
		if err := s.encode(block); err != nil {
			return err
		}
	}

	return transcode.Drain(s.encoder, s.packet, s.writePacket)
}

// flush drops everything buffered before a seek. The encoder keeps running so
// the output stays one continuous stream.
func (s *stream) flush() error {
	if s.copying() {
		return nil
	}
	if err := s.decoder.Flush(); err != nil {
		return err
	}
	if s.queue != nil {
		s.queue.Clear()
	}
	return s.buildChain(s.source)
}

func (s *stream) close() error {
	var errs []error
	if s.chain != nil {
		errs = append(errs, s.chain.Close())
		s.chain = nil
	}
	if s.decoder != nil {
		errs = append(errs, s.decoder.Close())
		s.decoder = nil
	}
	if s.encoder != nil {
		errs = append(errs, s.encoder.Close())
		s.encoder = nil
	}
	if s.frame != nil {
		s.frame.Unref()
		s.filtered.Unref()
	}
	return errors.Join(errs...)
}

// sameFrameFormat compares what a chain source cares about: time base and
// color space changes do not need a rebuild.
func sameFrameFormat(a, b media.Format) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case media.MediaTypeAudio:
		return a.Audio == b.Audio
	case media.MediaTypeVideo:
		return a.Video.Width == b.Video.Width && a.Video.Height == b.Video.Height && a.Video.PixelFormat == b.Video.PixelFormat
	default:
		return true
	}
}
