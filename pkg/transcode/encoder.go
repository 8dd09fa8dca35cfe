//go:build cgo_enabled

package transcode

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

// nativeEncoder runs an FFmpeg encoder. Codec private options come from
// Config.Options; "global_header" set to "0" keeps parameter sets in band.
type nativeEncoder struct {
	name    string
	config  Config
	device  *hwcontext.Device
	codec   *astiav.Codec
	context *astiav.CodecContext
	frame   *astiav.Frame
	packet  *astiav.Packet
	sps     []byte
	pps     []byte
}

func (e *nativeEncoder) Open(config Config, device *hwcontext.Device) error {
	if e.codec = astiav.FindEncoderByName(e.name); e.codec == nil {
		return fmt.Errorf("ffmpeg encoder %s: %w", e.name, ErrUnknownCodec)
	}
	e.config = config
	e.device = device

	if err := e.openContext(); err != nil {
		return err
	}
	e.frame = astiav.AllocFrame()
	e.packet = astiav.AllocPacket()
	return nil
}

func (e *nativeEncoder) openContext() error {
	if e.context = astiav.AllocCodecContext(e.codec); e.context == nil {
		return fmt.Errorf("allocating %s context: %w", e.name, media.ErrAllocate)
	}
	if err := applyContextConfig(e.context, e.config, e.device); err != nil {
		return err
	}

	if v, _ := e.config.Option("global_header"); v != "0" {
		e.context.SetFlags(astiav.NewCodecContextFlags(astiav.CodecContextFlagGlobalHeader))
	}

	options, err := codecDictionary(e.config)
	if err != nil {
		return err
	}
	defer options.Free()

	if len(e.config.Options) == 0 {
		logging.WithComponent("encoder").WithField("codec", e.name).Warn("no encoder settings provided")
	}

	if err := e.context.Open(e.codec, options); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	e.findParameterSets(e.context.ExtraData())
	return nil
}

// FrameSize reports the codec's fixed audio frame size, zero for codecs
// accepting any size.
func (e *nativeEncoder) FrameSize() int {
	if e.context == nil || e.config.MediaType != media.MediaTypeAudio {
		return 0
	}
	if e.codec.Capabilities().Has(astiav.CodecCapabilityVariableFrameSize) {
		return 0
	}
	return e.context.FrameSize()
}

func (e *nativeEncoder) Send(frame *media.Frame) error {
	if e.context == nil {
		return errNoContext
	}
	if frame == nil {
		return mapNativeError(e.context.SendFrame(nil))
	}

	if err := frame.ToNative(e.frame); err != nil {
		return err
	}
	defer e.frame.Unref()
	e.frame.SetPts(media.Rescale(frame.PTS, frame.TimeBase, e.config.TimeBase))
	e.frame.SetPictureType(astiav.PictureTypeNone)

	return mapNativeError(e.context.SendFrame(e.frame))
}

func (e *nativeEncoder) Receive(packet *media.Packet) error {
	if e.context == nil {
		return errNoContext
	}
	if err := e.context.ReceivePacket(e.packet); err != nil {
		return mapNativeError(err)
	}
	defer e.packet.Unref()

	packet.FromNative(e.packet)
	return nil
}

func (e *nativeEncoder) Flush() {
	if e.context != nil {
		e.context.Free()
	}
	if err := e.openContext(); err != nil {
		e.context = nil
	}
}

func (e *nativeEncoder) Close() error {
	if e.context != nil {
		e.context.Free()
		e.context = nil
	}
	if e.frame != nil {
		e.frame.Free()
	}
	if e.packet != nil {
		e.packet.Free()
	}
	return nil
}

func (e *nativeEncoder) GetParameterSets() ([]byte, []byte, error) {
	if e.context == nil {
		return nil, nil, errNoContext
	}
	e.findParameterSets(e.context.ExtraData())
	return e.sps, e.pps, nil
}

// findParameterSets extracts H.264 SPS and PPS NAL units (start code
// included) from annex B extradata.
func (e *nativeEncoder) findParameterSets(extraData []byte) {
	for i := 0; i < len(extraData)-4; i++ {
		if !isStartCode(extraData[i:]) {
			continue
		}

		nalType := extraData[i+4] & 0x1F
		next := len(extraData)
		for j := i + 4; j < len(extraData)-4; j++ {
			if isStartCode(extraData[j:]) {
				next = j
				break
			}
		}

		switch nalType {
		case 7:
			e.sps = append([]byte(nil), extraData[i:next]...)
		case 8:
			e.pps = append([]byte(nil), extraData[i:next]...)
		}
		i = next - 1
	}
}

func isStartCode(b []byte) bool {
	return len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1
}
