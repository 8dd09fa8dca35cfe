//go:build cgo_enabled

package container

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

var ErrInputFormat = errors.New("container: input format does not exist")

type DemuxerOption = func(*FormatDemuxer) error

func WithRTSPInputOption(d *FormatDemuxer) error {
	for _, kv := range [][2]string{
		{"rtsp_transport", "tcp"},
		{"stimeout", "5000000"},
		{"fflags", "nobuffer"},
		{"flags", "low_delay"},
		{"reorder_queue_size", "0"},
	} {
		if err := d.SetInputOption(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func WithFileInputOption(d *FormatDemuxer) error {
	return d.SetInputOption("re", "")
}

func WithAlsaInputFormatOption(d *FormatDemuxer) error {
	return d.SetInputFormat("alsa")
}

func WithAvFoundationInputFormatOption(d *FormatDemuxer) error {
	if err := d.SetInputFormat("avfoundation"); err != nil {
		return err
	}
	if err := d.SetInputOption("video_size", "1280x720"); err != nil {
		return err
	}
	if err := d.SetInputOption("framerate", "30"); err != nil {
		return err
	}
	return d.SetInputOption("pixel_format", "uyvy422")
}

func WithInputOption(key, value string) DemuxerOption {
	return func(d *FormatDemuxer) error {
		return d.SetInputOption(key, value)
	}
}

func WithInputFormat(name string) DemuxerOption {
	return func(d *FormatDemuxer) error {
		return d.SetInputFormat(name)
	}
}

// WithInputIO makes the demuxer read through src instead of opening the
// address itself.
func WithInputIO(src IO) DemuxerOption {
	return func(d *FormatDemuxer) error {
		if !src.CanRead() {
			return fmt.Errorf("format demuxer without read: %w", ErrCapability)
		}
		d.io = &src
		return nil
	}
}

// FormatDemuxer reads any container FFmpeg can open.
type FormatDemuxer struct {
	address       string
	formatContext *astiav.FormatContext
	ioContext     *astiav.IOContext
	inputOptions  *astiav.Dictionary
	inputFormat   *astiav.InputFormat
	io            *IO
	packet        *astiav.Packet
	streams       []StreamInfo
	log           *logrus.Entry
}

func NewFormatDemuxer(address string, options ...DemuxerOption) (*FormatDemuxer, error) {
	astiav.RegisterAllDevices()

	d := &FormatDemuxer{
		address:       address,
		formatContext: astiav.AllocFormatContext(),
		inputOptions:  astiav.NewDictionary(),
		log:           logging.WithComponent("container").WithField("address", address),
	}
	if d.formatContext == nil || d.inputOptions == nil {
		d.free()
		return nil, fmt.Errorf("allocating format context: %w", media.ErrAllocate)
	}

	for _, option := range options {
		if err := option(d); err != nil {
			d.free()
			return nil, err
		}
	}

	if err := d.open(); err != nil {
		d.free()
		return nil, err
	}

	d.packet = astiav.AllocPacket()
	d.log.WithField("streams", len(d.streams)).Info("input opened")
	return d, nil
}

func (d *FormatDemuxer) SetInputOption(key, value string) error {
	return d.inputOptions.Set(key, value, 0)
}

func (d *FormatDemuxer) SetInputFormat(name string) error {
	f := astiav.FindInputFormat(name)
	if f == nil {
		return fmt.Errorf("%s: %w", name, ErrInputFormat)
	}
	d.inputFormat = f
	return nil
}

func (d *FormatDemuxer) open() error {
	if d.io != nil {
		var seek astiav.IOContextSeekFunc
		if d.io.CanSeek() {
			seek = d.io.Seek
		}
		ioContext, err := astiav.AllocIOContext(4096, false, d.io.Read, seek, nil)
		if err != nil {
			return fmt.Errorf("allocating io context: %w", err)
		}
		d.ioContext = ioContext
		d.formatContext.SetPb(ioContext)
	}

	if err := d.formatContext.OpenInput(d.address, d.inputFormat, d.inputOptions); err != nil {
		return fmt.Errorf("opening %s: %w", d.address, err)
	}
	if err := d.formatContext.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("%w: %w", ErrNoStreams, err)
	}

	for _, stream := range d.formatContext.Streams() {
		info, err := d.streamInfo(stream)
		if err != nil {
			d.log.WithError(err).WithField("stream", stream.Index()).Warn("ignoring stream")
			continue
		}
		d.streams = append(d.streams, info)
	}
	if len(d.streams) == 0 {
		return ErrNoStreams
	}
	return nil
}

func (d *FormatDemuxer) streamInfo(stream *astiav.Stream) (StreamInfo, error) {
	params := stream.CodecParameters()
	info := StreamInfo{
		Index:     stream.Index(),
		Codec:     params.CodecID().Name(),
		BitRate:   params.BitRate(),
		ExtraData: append([]byte(nil), params.ExtraData()...),
	}
	tb := media.RationalFromNative(stream.TimeBase())

	switch params.MediaType() {
	case astiav.MediaTypeAudio:
		sf, err := media.SampleFormatFromNative(params.SampleFormat())
		if err != nil {
			return StreamInfo{}, err
		}
		info.Format = media.AudioStreamFormat(media.AudioFormat{
			SampleFormat: sf,
			SampleRate:   params.SampleRate(),
			Layout:       media.ChannelLayoutFromNative(params.ChannelLayout()),
		}, tb)
	case astiav.MediaTypeVideo:
		pf, err := media.PixelFormatFromNative(params.PixelFormat())
		if err != nil {
			return StreamInfo{}, err
		}
		info.Format = media.VideoStreamFormat(media.VideoFormat{
			Width:       params.Width(),
			Height:      params.Height(),
			PixelFormat: pf,
			ColorSpace:  media.ColorSpaceFromNative(params.ColorSpace()),
		}, tb)
		info.FrameRate = media.RationalFromNative(d.formatContext.GuessFrameRate(stream, nil))
	default:
		return StreamInfo{}, fmt.Errorf("%s stream: %w", params.MediaType(), ErrInvalidStream)
	}
	return info, nil
}

func (d *FormatDemuxer) Streams() []StreamInfo {
	return append([]StreamInfo(nil), d.streams...)
}

// ReadPacket skips packets of streams that were ignored at open.
func (d *FormatDemuxer) ReadPacket(packet *media.Packet) error {
	if d.packet == nil {
		return fmt.Errorf("reading closed demuxer: %w", ErrInvalidState)
	}

	for {
		if err := d.formatContext.ReadFrame(d.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				return io.EOF
			}
			return fmt.Errorf("reading %s: %w", d.address, err)
		}
		if !d.known(d.packet.StreamIndex()) {
			d.packet.Unref()
			continue
		}
		packet.FromNative(d.packet)
		d.packet.Unref()
		return nil
	}
}

func (d *FormatDemuxer) known(index int) bool {
	for _, s := range d.streams {
		if s.Index == index {
			return true
		}
	}
	return false
}

func (d *FormatDemuxer) Seek(streamIndex int, ts int64) error {
	if !d.known(streamIndex) {
		return fmt.Errorf("stream %d: %w", streamIndex, ErrInvalidStream)
	}
	if d.io != nil && !d.io.CanSeek() {
		return ErrNotSeekable
	}
	if err := d.formatContext.SeekFrame(streamIndex, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("%w: %w", ErrNotSeekable, err)
	}
	return nil
}

func (d *FormatDemuxer) Close() error {
	if d.packet == nil {
		return nil
	}
	d.packet.Free()
	d.packet = nil
	d.formatContext.CloseInput()
	d.free()
	d.log.Debug("input closed")
	return nil
}

func (d *FormatDemuxer) free() {
	if d.formatContext != nil {
		d.formatContext.Free()
		d.formatContext = nil
	}
	if d.ioContext != nil {
		d.ioContext.Free()
		d.ioContext = nil
	}
	if d.inputOptions != nil {
		d.inputOptions.Free()
		d.inputOptions = nil
	}
}
