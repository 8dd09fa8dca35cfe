//go:build cgo_enabled

package media

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

var nativeSampleFormats = map[SampleFormat]astiav.SampleFormat{
	SampleFormatU8:   astiav.SampleFormatU8,
	SampleFormatS16:  astiav.SampleFormatS16,
	SampleFormatS32:  astiav.SampleFormatS32,
	SampleFormatFLT:  astiav.SampleFormatFlt,
	SampleFormatDBL:  astiav.SampleFormatDbl,
	SampleFormatS64:  astiav.SampleFormatS64,
	SampleFormatU8P:  astiav.SampleFormatU8P,
	SampleFormatS16P: astiav.SampleFormatS16P,
	SampleFormatS32P: astiav.SampleFormatS32P,
	SampleFormatFLTP: astiav.SampleFormatFltp,
	SampleFormatDBLP: astiav.SampleFormatDblp,
	SampleFormatS64P: astiav.SampleFormatS64P,
}

var nativePixelFormats = map[PixelFormat]astiav.PixelFormat{
	PixelFormatGray8:   astiav.PixelFormatGray8,
	PixelFormatYUV420P: astiav.PixelFormatYuv420P,
	PixelFormatYUV422P: astiav.PixelFormatYuv422P,
	PixelFormatYUV444P: astiav.PixelFormatYuv444P,
	PixelFormatNV12:    astiav.PixelFormatNv12,
	PixelFormatRGB24:   astiav.PixelFormatRgb24,
	PixelFormatBGR24:   astiav.PixelFormatBgr24,
	PixelFormatRGBA:    astiav.PixelFormatRgba,
	PixelFormatBGRA:    astiav.PixelFormatBgra,
}

var nativeColorSpaces = map[ColorSpace]astiav.ColorSpace{
	ColorSpaceUnspecified: astiav.ColorSpaceUnspecified,
	ColorSpaceBT709:       astiav.ColorSpaceBt709,
	ColorSpaceBT601:       astiav.ColorSpaceSmpte170M,
	ColorSpaceBT2020:      astiav.ColorSpaceBt2020Ncl,
	ColorSpaceRGB:         astiav.ColorSpaceRgb,
}

var nativeChannelLayouts = []struct {
	layout ChannelLayout
	native astiav.ChannelLayout
}{
	{ChannelLayoutMono, astiav.ChannelLayoutMono},
	{ChannelLayoutStereo, astiav.ChannelLayoutStereo},
	{ChannelLayout2Point1, astiav.ChannelLayout2Point1},
	{ChannelLayoutQuad, astiav.ChannelLayoutQuad},
	{ChannelLayout5Point1, astiav.ChannelLayout5Point1},
	{ChannelLayout7Point1, astiav.ChannelLayout7Point1},
}

func (s SampleFormat) Native() (astiav.SampleFormat, error) {
	n, ok := nativeSampleFormats[s]
	if !ok {
		return astiav.SampleFormatNone, fmt.Errorf("sample format %s: %w", s, ErrInvalidFormat)
	}
	return n, nil
}

func SampleFormatFromNative(n astiav.SampleFormat) (SampleFormat, error) {
	for s, candidate := range nativeSampleFormats {
		if candidate == n {
			return s, nil
		}
	}
	return SampleFormatNone, fmt.Errorf("native sample format %s: %w", n, ErrInvalidFormat)
}

func (p PixelFormat) Native() (astiav.PixelFormat, error) {
	n, ok := nativePixelFormats[p]
	if !ok {
		return astiav.PixelFormatNone, fmt.Errorf("pixel format %s: %w", p, ErrInvalidFormat)
	}
	return n, nil
}

func PixelFormatFromNative(n astiav.PixelFormat) (PixelFormat, error) {
	for p, candidate := range nativePixelFormats {
		if candidate == n {
			return p, nil
		}
	}
	return PixelFormatNone, fmt.Errorf("native pixel format %s: %w", n, ErrInvalidFormat)
}

func (c ColorSpace) Native() astiav.ColorSpace {
	return nativeColorSpaces[c]
}

func ColorSpaceFromNative(n astiav.ColorSpace) ColorSpace {
	for c, candidate := range nativeColorSpaces {
		if candidate == n {
			return c
		}
	}
	return ColorSpaceUnspecified
}

func (c ChannelLayout) Native() (astiav.ChannelLayout, error) {
	for _, l := range nativeChannelLayouts {
		if l.layout == c {
			return l.native, nil
		}
	}
	return astiav.ChannelLayout{}, fmt.Errorf("channel layout %s: %w", c, ErrInvalidFormat)
}

// ChannelLayoutFromNative maps well known native layouts and falls back to
// the default layout for the channel count.
func ChannelLayoutFromNative(n astiav.ChannelLayout) ChannelLayout {
	for _, l := range nativeChannelLayouts {
		if l.native.Equal(n) {
			return l.layout
		}
	}
	return DefaultChannelLayout(n.Channels())
}

func (r Rational) Native() astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

func RationalFromNative(n astiav.Rational) Rational {
	return Rational{Num: n.Num(), Den: n.Den()}
}

// ToNative copies p into dst, which is unreferenced first.
func (p *Packet) ToNative(dst *astiav.Packet) error {
	dst.Unref()
	if err := dst.FromData(append([]byte(nil), p.data...)); err != nil {
		return fmt.Errorf("packet to native: %w", err)
	}
	dst.SetPts(p.PTS)
	dst.SetDts(p.DTS)
	dst.SetDuration(p.Duration)
	dst.SetStreamIndex(p.StreamIndex)
	if p.Key {
		dst.SetFlags(astiav.NewPacketFlags(astiav.PacketFlagKey))
	}
	return nil
}

// FromNative replaces p's payload and properties with a copy of src.
func (p *Packet) FromNative(src *astiav.Packet) {
	p.CopyData(src.Data())
	p.PTS = src.Pts()
	p.DTS = src.Dts()
	p.Duration = src.Duration()
	p.StreamIndex = src.StreamIndex()
	p.Key = src.Flags().Has(astiav.PacketFlagKey)
}

// ToNative copies f into dst as a software frame. dst is unreferenced first.
func (f *Frame) ToNative(dst *astiav.Frame) error {
	if f.buf == nil {
		return ErrEmptyFrame
	}
	dst.Unref()

	var data []byte
	switch f.typ {
	case MediaTypeAudio:
		sf, err := f.audio.SampleFormat.Native()
		if err != nil {
			return err
		}
		layout, err := f.audio.Layout.Native()
		if err != nil {
			return err
		}
		dst.SetSampleFormat(sf)
		dst.SetSampleRate(f.audio.SampleRate)
		dst.SetChannelLayout(layout)
		dst.SetNbSamples(f.count)
		for i := range f.buf.planes {
			data = append(data, f.Samples(i)...)
		}
	case MediaTypeVideo:
		pf, err := f.video.PixelFormat.Native()
		if err != nil {
			return err
		}
		dst.SetPixelFormat(pf)
		dst.SetWidth(f.video.Width)
		dst.SetHeight(f.video.Height)
		dst.SetColorSpace(f.video.ColorSpace.Native())
		data = f.VideoBytes()
	default:
		return ErrInvalidFormat
	}

	if err := dst.AllocBuffer(0); err != nil {
		return fmt.Errorf("allocating native frame: %w: %w", ErrAllocate, err)
	}
	if err := dst.Data().SetBytes(data, 1); err != nil {
		return fmt.Errorf("filling native frame: %w", err)
	}
	dst.SetPts(f.PTS)
	return nil
}

// FromNative replaces f with a copy of the software frame src. Timestamps are
// taken to be in tb.
func (f *Frame) FromNative(src *astiav.Frame, tb Rational) error {
	data, err := src.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("reading native frame: %w", err)
	}

	f.Unref()
	if src.NbSamples() > 0 {
		sf, err := SampleFormatFromNative(src.SampleFormat())
		if err != nil {
			return err
		}
		format := AudioFormat{
			SampleFormat: sf,
			SampleRate:   src.SampleRate(),
			Layout:       ChannelLayoutFromNative(src.ChannelLayout()),
		}
		if err := f.AllocAudio(format, src.NbSamples()); err != nil {
			return err
		}
		size := f.count * format.BlockAlign()
		for i := range f.buf.planes {
			copy(f.buf.planes[i], data[i*size:])
		}
	} else {
		pf, err := PixelFormatFromNative(src.PixelFormat())
		if err != nil {
			return err
		}
		format := VideoFormat{
			Width:       src.Width(),
			Height:      src.Height(),
			PixelFormat: pf,
			ColorSpace:  ColorSpaceFromNative(src.ColorSpace()),
		}
		if err := f.AllocVideo(format); err != nil {
			return err
		}
		if err := f.FillVideo(data); err != nil {
			return err
		}
	}

	f.PTS = src.Pts()
	f.TimeBase = tb
	f.KeyFrame = src.PictureType() == astiav.PictureTypeI
	return nil
}
