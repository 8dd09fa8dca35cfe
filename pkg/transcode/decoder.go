//go:build cgo_enabled

package transcode

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/media"
)

func init() {
	lookupNative = findNativeCodec
}

// findNativeCodec resolves a codec name against the FFmpeg libraries.
func findNativeCodec(name string) (codec, bool) {
	decoder := astiav.FindDecoderByName(name)
	encoder := astiav.FindEncoderByName(name)
	if decoder == nil && encoder == nil {
		return codec{}, false
	}

	c := codec{}
	var id astiav.CodecID
	if decoder != nil {
		id = decoder.ID()
		c.newDecoder = func() DecoderEngine { return &nativeDecoder{name: name} }
	}
	if encoder != nil {
		id = encoder.ID()
		c.newEncoder = func() EncoderEngine { return &nativeEncoder{name: name} }
	}

	c.desc = Descriptor{Name: name, Capabilities: CapabilityHardware}
	switch id.MediaType() {
	case astiav.MediaTypeAudio:
		c.desc.MediaType = media.MediaTypeAudio
	case astiav.MediaTypeVideo:
		c.desc.MediaType = media.MediaTypeVideo
	default:
		return codec{}, false
	}
	return c, true
}

// nativeDecoder runs an FFmpeg decoder.
type nativeDecoder struct {
	name     string
	config   Config
	device   *hwcontext.Device
	codec    *astiav.Codec
	context  *astiav.CodecContext
	packet   *astiav.Packet
	frame    *astiav.Frame
	software *astiav.Frame
}

func (d *nativeDecoder) Open(config Config, device *hwcontext.Device) error {
	if d.codec = astiav.FindDecoderByName(d.name); d.codec == nil {
		return fmt.Errorf("ffmpeg decoder %s: %w", d.name, ErrUnknownCodec)
	}
	d.config = config
	d.device = device

	if err := d.openContext(); err != nil {
		return err
	}
	d.packet = astiav.AllocPacket()
	d.frame = astiav.AllocFrame()
	d.software = astiav.AllocFrame()
	return nil
}

func (d *nativeDecoder) openContext() error {
	if d.context = astiav.AllocCodecContext(d.codec); d.context == nil {
		return fmt.Errorf("allocating %s context: %w", d.name, media.ErrAllocate)
	}
	if err := applyContextConfig(d.context, d.config, d.device); err != nil {
		return err
	}

	options, err := codecDictionary(d.config)
	if err != nil {
		return err
	}
	defer options.Free()

	if err := d.context.Open(d.codec, options); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

var errNoContext = errors.New("codec context lost in flush")

func (d *nativeDecoder) Send(packet *media.Packet) error {
	if d.context == nil {
		return errNoContext
	}
	if packet == nil {
		return mapNativeError(d.context.SendPacket(nil))
	}
	if err := packet.ToNative(d.packet); err != nil {
		return err
	}
	defer d.packet.Unref()
	return mapNativeError(d.context.SendPacket(d.packet))
}

func (d *nativeDecoder) Receive(frame *media.Frame) error {
	if d.context == nil {
		return errNoContext
	}
	if err := d.context.ReceiveFrame(d.frame); err != nil {
		return mapNativeError(err)
	}
	defer d.frame.Unref()

	source := d.frame
	if d.frame.HardwareFramesContext() != nil {
		// hardware frames are downloaded: media frames hold system memory
		if err := d.frame.TransferHardwareData(d.software); err != nil {
			return fmt.Errorf("downloading hardware frame: %w", err)
		}
		d.software.SetPts(d.frame.Pts())
		defer d.software.Unref()
		source = d.software
	}

	tb := d.config.TimeBase
	if tb.IsZero() {
		tb = media.RationalFromNative(d.context.TimeBase())
	}
	if err := frame.FromNative(source, tb); err != nil {
		return err
	}
	if frame.MediaType() == media.MediaTypeAudio && frame.Audio().SampleRate > 0 && tb.IsZero() {
		frame.TimeBase = media.NewRational(1, frame.Audio().SampleRate)
	}
	return nil
}

// Flush reopens the codec context, dropping everything it buffered.
func (d *nativeDecoder) Flush() {
	if d.context != nil {
		d.context.Free()
	}
	if err := d.openContext(); err != nil {
		d.context = nil
	}
}

func (d *nativeDecoder) Close() error {
	if d.context != nil {
		d.context.Free()
		d.context = nil
	}
	for _, f := range []*astiav.Frame{d.frame, d.software} {
		if f != nil {
			f.Free()
		}
	}
	if d.packet != nil {
		d.packet.Free()
	}
	return nil
}

func applyContextConfig(ctx *astiav.CodecContext, config Config, device *hwcontext.Device) error {
	switch config.MediaType {
	case media.MediaTypeAudio:
		if config.SampleFormat != media.SampleFormatNone {
			sf, err := config.SampleFormat.Native()
			if err != nil {
				return fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
			ctx.SetSampleFormat(sf)
		}
		if config.SampleRate > 0 {
			ctx.SetSampleRate(config.SampleRate)
		}
		if config.ChannelLayout != 0 {
			layout, err := config.ChannelLayout.Native()
			if err != nil {
				return fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
			ctx.SetChannelLayout(layout)
		}
		if config.FrameSize > 0 {
			ctx.SetFrameSize(config.FrameSize)
		}
	case media.MediaTypeVideo:
		if config.Width > 0 && config.Height > 0 {
			ctx.SetWidth(config.Width)
			ctx.SetHeight(config.Height)
		}
		if config.PixelFormat != media.PixelFormatNone {
			pf, err := config.PixelFormat.Native()
			if err != nil {
				return fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
			ctx.SetPixelFormat(pf)
		}
		ctx.SetColorSpace(config.ColorSpace.Native())
		if !config.FrameRate.IsZero() {
			ctx.SetFramerate(config.FrameRate.Native())
		}
	}

	if !config.TimeBase.IsZero() {
		ctx.SetTimeBase(config.TimeBase.Native())
	}
	if config.BitRate > 0 {
		ctx.SetBitRate(config.BitRate)
	}
	if config.ThreadCount > 0 {
		ctx.SetThreadCount(config.ThreadCount)
		ctx.SetThreadType(astiav.ThreadTypeFrame)
	}

	if device != nil {
		native, err := device.Native()
		if err != nil {
			return err
		}
		hdc, ok := native.(*astiav.HardwareDeviceContext)
		if !ok {
			return fmt.Errorf("device %s is not an ffmpeg device: %w", device.Name(), ErrConfiguration)
		}
		ctx.SetHardwareDeviceContext(hdc)
	}
	return nil
}

// localOptions are consumed by this package and never reach FFmpeg.
var localOptions = map[string]struct{}{
	"queue_size":    {},
	"global_header": {},
}

// codecDictionary turns codec private options into an FFmpeg dictionary. The
// caller frees it.
func codecDictionary(config Config) (*astiav.Dictionary, error) {
	dict := astiav.NewDictionary()
	for key, value := range config.Options {
		if _, local := localOptions[key]; local || value == "" {
			continue
		}
		if err := dict.Set(key, value, 0); err != nil {
			dict.Free()
			return nil, fmt.Errorf("codec option %s=%s: %w", key, value, err)
		}
	}
	return dict, nil
}

func mapNativeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return ErrAgain
	case errors.Is(err, astiav.ErrEof):
		return ErrEOF
	default:
		return err
	}
}
