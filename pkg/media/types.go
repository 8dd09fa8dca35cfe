package media

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// NoTimestamp marks an absent presentation or decompression timestamp.
const NoTimestamp int64 = -1 << 63

type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeAudio
	MediaTypeVideo
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

type SampleFormat int

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatFLT
	SampleFormatDBL
	SampleFormatS64
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatFLTP
	SampleFormatDBLP
	SampleFormatS64P
)

var sampleFormatNames = map[SampleFormat]string{
	SampleFormatU8:   "u8",
	SampleFormatS16:  "s16",
	SampleFormatS32:  "s32",
	SampleFormatFLT:  "flt",
	SampleFormatDBL:  "dbl",
	SampleFormatS64:  "s64",
	SampleFormatU8P:  "u8p",
	SampleFormatS16P: "s16p",
	SampleFormatS32P: "s32p",
	SampleFormatFLTP: "fltp",
	SampleFormatDBLP: "dblp",
	SampleFormatS64P: "s64p",
}

func (s SampleFormat) String() string {
	if n, ok := sampleFormatNames[s]; ok {
		return n
	}
	return "none"
}

// BytesPerSample returns the size of one sample of one channel.
func (s SampleFormat) BytesPerSample() int {
	switch s.Packed() {
	case SampleFormatU8:
		return 1
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatFLT:
		return 4
	case SampleFormatDBL, SampleFormatS64:
		return 8
	default:
		return 0
	}
}

func (s SampleFormat) IsPlanar() bool {
	return s >= SampleFormatU8P && s <= SampleFormatS64P
}

// Packed returns the interleaved variant of s.
func (s SampleFormat) Packed() SampleFormat {
	if s.IsPlanar() {
		return s - (SampleFormatU8P - SampleFormatU8)
	}
	return s
}

// Planar returns the planar variant of s.
func (s SampleFormat) Planar() SampleFormat {
	if s == SampleFormatNone || s.IsPlanar() {
		return s
	}
	return s + (SampleFormatU8P - SampleFormatU8)
}

func ParseSampleFormat(name string) (SampleFormat, error) {
	for f, n := range sampleFormatNames {
		if n == name {
			return f, nil
		}
	}
	return SampleFormatNone, fmt.Errorf("unknown sample format %q: %w", name, ErrInvalidFormat)
}

type PixelFormat int

const (
	PixelFormatNone PixelFormat = iota
	PixelFormatGray8
	PixelFormatYUV420P
	PixelFormatYUV422P
	PixelFormatYUV444P
	PixelFormatNV12
	PixelFormatRGB24
	PixelFormatBGR24
	PixelFormatRGBA
	PixelFormatBGRA
)

type pixelLayout struct {
	name string
	// per plane: bytes per pixel, horizontal and vertical chroma shift
	bpp    []int
	shiftW []int
	shiftH []int
}

var pixelLayouts = map[PixelFormat]pixelLayout{
	PixelFormatGray8:   {name: "gray", bpp: []int{1}, shiftW: []int{0}, shiftH: []int{0}},
	PixelFormatYUV420P: {name: "yuv420p", bpp: []int{1, 1, 1}, shiftW: []int{0, 1, 1}, shiftH: []int{0, 1, 1}},
	PixelFormatYUV422P: {name: "yuv422p", bpp: []int{1, 1, 1}, shiftW: []int{0, 1, 1}, shiftH: []int{0, 0, 0}},
	PixelFormatYUV444P: {name: "yuv444p", bpp: []int{1, 1, 1}, shiftW: []int{0, 0, 0}, shiftH: []int{0, 0, 0}},
	PixelFormatNV12:    {name: "nv12", bpp: []int{1, 2}, shiftW: []int{0, 1}, shiftH: []int{0, 1}},
	PixelFormatRGB24:   {name: "rgb24", bpp: []int{3}, shiftW: []int{0}, shiftH: []int{0}},
	PixelFormatBGR24:   {name: "bgr24", bpp: []int{3}, shiftW: []int{0}, shiftH: []int{0}},
	PixelFormatRGBA:    {name: "rgba", bpp: []int{4}, shiftW: []int{0}, shiftH: []int{0}},
	PixelFormatBGRA:    {name: "bgra", bpp: []int{4}, shiftW: []int{0}, shiftH: []int{0}},
}

func (p PixelFormat) String() string {
	if l, ok := pixelLayouts[p]; ok {
		return l.name
	}
	return "none"
}

func (p PixelFormat) Planes() int {
	return len(pixelLayouts[p].bpp)
}

// BytesPerPixel returns the number of bytes one pixel occupies in plane.
func (p PixelFormat) BytesPerPixel(plane int) int {
	l := pixelLayouts[p]
	if plane < 0 || plane >= len(l.bpp) {
		return 0
	}
	return l.bpp[plane]
}

// PlaneSize returns the pixel dimensions of plane for a picture of
// width x height. Subsampled dimensions round up.
func (p PixelFormat) PlaneSize(plane, width, height int) (int, int) {
	l := pixelLayouts[p]
	if plane < 0 || plane >= len(l.bpp) {
		return 0, 0
	}
	return ceilShift(width, l.shiftW[plane]), ceilShift(height, l.shiftH[plane])
}

// ChromaShift returns the log2 subsampling factors of the chroma planes.
func (p PixelFormat) ChromaShift() (int, int) {
	l := pixelLayouts[p]
	if len(l.bpp) < 2 {
		return 0, 0
	}
	return l.shiftW[1], l.shiftH[1]
}

func ceilShift(v, s int) int {
	return (v + (1 << s) - 1) >> s
}

func ParsePixelFormat(name string) (PixelFormat, error) {
	for f, l := range pixelLayouts {
		if l.name == name {
			return f, nil
		}
	}
	return PixelFormatNone, fmt.Errorf("unknown pixel format %q: %w", name, ErrInvalidFormat)
}

// ChannelLayout is a bit mask of speaker positions.
type ChannelLayout uint64

const (
	ChannelFrontLeft    ChannelLayout = 0x1
	ChannelFrontRight   ChannelLayout = 0x2
	ChannelFrontCenter  ChannelLayout = 0x4
	ChannelLowFrequency ChannelLayout = 0x8
	ChannelBackLeft     ChannelLayout = 0x10
	ChannelBackRight    ChannelLayout = 0x20
	ChannelSideLeft     ChannelLayout = 0x200
	ChannelSideRight    ChannelLayout = 0x400
)

const (
	ChannelLayoutMono        = ChannelFrontCenter
	ChannelLayoutStereo      = ChannelFrontLeft | ChannelFrontRight
	ChannelLayout2Point1     = ChannelLayoutStereo | ChannelLowFrequency
	ChannelLayoutQuad        = ChannelLayoutStereo | ChannelBackLeft | ChannelBackRight
	ChannelLayout5Point1     = ChannelLayoutStereo | ChannelFrontCenter | ChannelLowFrequency | ChannelSideLeft | ChannelSideRight
	ChannelLayout7Point1     = ChannelLayout5Point1 | ChannelBackLeft | ChannelBackRight
	channelLayoutUnspecified = ChannelLayout(0)
)

var channelLayoutNames = []struct {
	layout ChannelLayout
	name   string
}{
	{ChannelLayoutMono, "mono"},
	{ChannelLayoutStereo, "stereo"},
	{ChannelLayout2Point1, "2.1"},
	{ChannelLayoutQuad, "quad"},
	{ChannelLayout5Point1, "5.1"},
	{ChannelLayout7Point1, "7.1"},
}

func (c ChannelLayout) Channels() int {
	return bits.OnesCount64(uint64(c))
}

func (c ChannelLayout) String() string {
	for _, n := range channelLayoutNames {
		if n.layout == c {
			return n.name
		}
	}
	if c == channelLayoutUnspecified {
		return "unspecified"
	}
	return fmt.Sprintf("0x%x", uint64(c))
}

// DefaultChannelLayout returns the conventional layout for n channels.
func DefaultChannelLayout(n int) ChannelLayout {
	for _, l := range channelLayoutNames {
		if l.layout.Channels() == n {
			return l.layout
		}
	}
	if n <= 0 || n > 64 {
		return channelLayoutUnspecified
	}
	return ChannelLayout(uint64(1)<<uint(n) - 1)
}

// ParseChannelLayout accepts a layout name ("stereo"), a channel count
// suffixed with "c" ("2c") or a hexadecimal mask ("0x3").
func ParseChannelLayout(s string) (ChannelLayout, error) {
	for _, n := range channelLayoutNames {
		if n.name == s {
			return n.layout, nil
		}
	}
	if strings.HasSuffix(s, "c") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "c"))
		if err == nil && n > 0 {
			return DefaultChannelLayout(n), nil
		}
	}
	if strings.HasPrefix(s, "0x") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err == nil && v != 0 {
			return ChannelLayout(v), nil
		}
	}
	return channelLayoutUnspecified, fmt.Errorf("unknown channel layout %q: %w", s, ErrInvalidFormat)
}

type ColorSpace int

const (
	ColorSpaceUnspecified ColorSpace = iota
	ColorSpaceBT709
	ColorSpaceBT601
	ColorSpaceBT2020
	ColorSpaceRGB
)

var colorSpaceNames = map[ColorSpace]string{
	ColorSpaceUnspecified: "unknown",
	ColorSpaceBT709:       "bt709",
	ColorSpaceBT601:       "smpte170m",
	ColorSpaceBT2020:      "bt2020nc",
	ColorSpaceRGB:         "gbr",
}

func (c ColorSpace) String() string {
	if n, ok := colorSpaceNames[c]; ok {
		return n
	}
	return "unknown"
}

func ParseColorSpace(name string) (ColorSpace, error) {
	for c, n := range colorSpaceNames {
		if n == name {
			return c, nil
		}
	}
	return ColorSpaceUnspecified, fmt.Errorf("unknown color space %q: %w", name, ErrInvalidFormat)
}
