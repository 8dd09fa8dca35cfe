package filter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/harshabose/avpipe/pkg/media"
)

func init() {
	mustRegister(Definition{Name: "volume", MediaType: media.MediaTypeAudio, Options: []string{"volume"}, New: newVolume})
}

// volume scales every sample by a constant factor, clipping integer formats.
type volume struct {
	factor float64
}

func newVolume(o Options) (Processor, error) {
	f, err := o.Float("volume", 1)
	if err != nil {
		return nil, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("volume=%v: %w", f, ErrInvalidArgument)
	}
	return &volume{factor: f}, nil
}

func (v *volume) NumInputs() int  { return 1 }
func (v *volume) NumOutputs() int { return 1 }

func (v *volume) Negotiate(in []media.Format) ([]media.Format, error) {
	if in[0].Type != media.MediaTypeAudio {
		return nil, fmt.Errorf("volume on %s: %w", in[0].Type, media.ErrFormatMismatch)
	}
	switch in[0].Audio.SampleFormat.Packed() {
	case media.SampleFormatU8, media.SampleFormatS16, media.SampleFormatS32, media.SampleFormatFLT, media.SampleFormatDBL:
		return in, nil
	}
	return nil, fmt.Errorf("volume on %s: %w", in[0].Audio.SampleFormat, media.ErrFormatMismatch)
}

func (v *volume) Process(_ int, frame *media.Frame, emit func(int, *media.Frame)) error {
	if frame == nil || v.factor == 1 {
		emit(0, frame)
		return nil
	}
	if err := frame.MakeWritable(); err != nil {
		frame.Unref()
		return err
	}

	le := binary.LittleEndian
	for i := 0; i < frame.PlaneCount(); i++ {
		s := frame.Samples(i)
		switch frame.Audio().SampleFormat.Packed() {
		case media.SampleFormatU8:
			for j := range s {
				s[j] = uint8(clip(float64(int(s[j])-128)*v.factor, -128, 127) + 128)
			}
		case media.SampleFormatS16:
			for j := 0; j+2 <= len(s); j += 2 {
				x := float64(int16(le.Uint16(s[j:])))
				le.PutUint16(s[j:], uint16(int16(clip(x*v.factor, math.MinInt16, math.MaxInt16))))
			}
		case media.SampleFormatS32:
			for j := 0; j+4 <= len(s); j += 4 {
				x := float64(int32(le.Uint32(s[j:])))
				le.PutUint32(s[j:], uint32(int32(clip(x*v.factor, math.MinInt32, math.MaxInt32))))
			}
		case media.SampleFormatFLT:
			for j := 0; j+4 <= len(s); j += 4 {
				x := math.Float32frombits(le.Uint32(s[j:]))
				le.PutUint32(s[j:], math.Float32bits(float32(float64(x)*v.factor)))
			}
		case media.SampleFormatDBL:
			for j := 0; j+8 <= len(s); j += 8 {
				x := math.Float64frombits(le.Uint64(s[j:]))
				le.PutUint64(s[j:], math.Float64bits(x*v.factor))
			}
		}
	}
	emit(0, frame)
	return nil
}

func clip(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, math.Round(x)))
}
