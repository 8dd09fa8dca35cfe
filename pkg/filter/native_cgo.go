//go:build cgo_enabled

package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/media"
)

func init() {
	lookupNative = findNativeFilter
}

// findNativeFilter exposes an FFmpeg filter with one input and one output as
// a node kind.
func findNativeFilter(name string) (Definition, bool) {
	if astiav.FindFilterByName(name) == nil {
		return Definition{}, false
	}
	return Definition{
		Name:        name,
		OpenOptions: true,
		New: func(o Options) (Processor, error) {
			return &nativeProcessor{content: nativeContent(name, o)}, nil
		},
	}, true
}

// nativeContent writes options back in FFmpeg syntax, positional values
// first.
func nativeContent(name string, o Options) string {
	var positional, named []string
	for i := 0; ; i++ {
		v, ok := o[fmt.Sprintf("#%d", i)]
		if !ok {
			break
		}
		positional = append(positional, escapeValue(v))
	}
	for k, v := range o {
		if !strings.HasPrefix(k, "#") {
			named = append(named, k+"="+escapeValue(v))
		}
	}
	sort.Strings(named)

	args := append(positional, named...)
	if len(args) == 0 {
		return name
	}
	return name + "=" + strings.Join(args, ":")
}

func escapeValue(v string) string {
	if strings.ContainsAny(v, ":,;[]='\\") {
		return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
	}
	return v
}

// nativeProcessor runs a private FFmpeg filter graph "in -> content -> out".
// The graph is built once the input format is negotiated.
type nativeProcessor struct {
	content string
	threads int

	graph  *astiav.FilterGraph
	src    *astiav.BuffersrcFilterContext
	sink   *astiav.BuffersinkFilterContext
	in     *astiav.Frame
	out    *astiav.Frame
	format media.Format
}

func (p *nativeProcessor) NumInputs() int  { return 1 }
func (p *nativeProcessor) NumOutputs() int { return 1 }

func (p *nativeProcessor) SetThreads(n int) {
	p.threads = n
}

func (p *nativeProcessor) Negotiate(in []media.Format) ([]media.Format, error) {
	if err := p.build(in[0]); err != nil {
		_ = p.Close()
		return nil, err
	}
	return []media.Format{p.format}, nil
}

func (p *nativeProcessor) build(format media.Format) error {
	p.graph = astiav.AllocFilterGraph()
	if p.graph == nil {
		return fmt.Errorf("allocating filter graph: %w", media.ErrAllocate)
	}
	if p.threads > 0 {
		p.graph.SetThreadCount(p.threads)
		p.graph.SetThreadType(astiav.ThreadTypeSlice)
	}

	srcName, sinkName := "buffer", "buffersink"
	if format.Type == media.MediaTypeAudio {
		srcName, sinkName = "abuffer", "abuffersink"
	}

	var err error
	if p.src, err = p.graph.NewBuffersrcFilterContext(astiav.FindFilterByName(srcName), "in"); err != nil {
		return fmt.Errorf("allocating %s: %w", srcName, err)
	}
	if p.sink, err = p.graph.NewBuffersinkFilterContext(astiav.FindFilterByName(sinkName), "out"); err != nil {
		return fmt.Errorf("allocating %s: %w", sinkName, err)
	}

	params := astiav.AllocBuffersrcFilterContextParameters()
	defer params.Free()
	params.SetTimeBase(format.TimeBase.Native())
	switch format.Type {
	case media.MediaTypeAudio:
		sf, err := format.Audio.SampleFormat.Native()
		if err != nil {
			return err
		}
		layout, err := format.Audio.Layout.Native()
		if err != nil {
			return err
		}
		params.SetSampleFormat(sf)
		params.SetSampleRate(format.Audio.SampleRate)
		params.SetChannelLayout(layout)
	case media.MediaTypeVideo:
		pf, err := format.Video.PixelFormat.Native()
		if err != nil {
			return err
		}
		params.SetPixelFormat(pf)
		params.SetWidth(format.Video.Width)
		params.SetHeight(format.Video.Height)
		params.SetColorSpace(format.Video.ColorSpace.Native())
		params.SetSampleAspectRatio(astiav.NewRational(1, 1))
	default:
		return fmt.Errorf("native filter on %s: %w", format.Type, media.ErrFormatMismatch)
	}
	if err := p.src.SetParameters(params); err != nil {
		return fmt.Errorf("buffer source parameters: %w", err)
	}
	if err := p.src.Initialize(astiav.NewDictionary()); err != nil {
		return fmt.Errorf("initialising buffer source: %w", err)
	}

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(p.src.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(p.sink.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	if err := p.graph.Parse(p.content, inputs, outputs); err != nil {
		return fmt.Errorf("parsing %q: %w: %w", p.content, ErrInvalidArgument, err)
	}
	if err := p.graph.Configure(); err != nil {
		return fmt.Errorf("configuring %q: %w", p.content, err)
	}

	p.format = media.Format{Type: format.Type, TimeBase: media.RationalFromNative(p.sink.TimeBase())}
	switch format.Type {
	case media.MediaTypeAudio:
		sf, err := media.SampleFormatFromNative(p.sink.SampleFormat())
		if err != nil {
			return err
		}
		p.format.Audio = media.AudioFormat{
			SampleFormat: sf,
			SampleRate:   p.sink.SampleRate(),
			Layout:       media.ChannelLayoutFromNative(p.sink.ChannelLayout()),
		}
	case media.MediaTypeVideo:
		pf, err := media.PixelFormatFromNative(p.sink.PixelFormat())
		if err != nil {
			return err
		}
		p.format.Video = media.VideoFormat{
			Width:       p.sink.Width(),
			Height:      p.sink.Height(),
			PixelFormat: pf,
			ColorSpace:  media.ColorSpaceFromNative(p.sink.ColorSpace()),
		}
	}

	p.in = astiav.AllocFrame()
	p.out = astiav.AllocFrame()
	return nil
}

func (p *nativeProcessor) Process(_ int, frame *media.Frame, emit func(int, *media.Frame)) error {
	if p.graph == nil {
		return fmt.Errorf("native filter %q not configured: %w", p.content, ErrInvalidState)
	}

	if frame == nil {
		if err := p.src.AddFrame(nil, astiav.NewBuffersrcFlags()); err != nil {
			return fmt.Errorf("closing %q: %w", p.content, err)
		}
	} else {
		err := frame.ToNative(p.in)
		frame.Unref()
		if err != nil {
			return err
		}
		err = p.src.AddFrame(p.in, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef))
		p.in.Unref()
		if err != nil {
			return fmt.Errorf("feeding %q: %w", p.content, err)
		}
	}

	for {
		if err := p.sink.GetFrame(p.out, astiav.NewBuffersinkFlags()); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				emit(0, nil)
				return nil
			}
			if errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("pulling from %q: %w", p.content, err)
		}

		f := media.NewFrame()
		err := f.FromNative(p.out, p.format.TimeBase)
		p.out.Unref()
		if err != nil {
			return err
		}
		emit(0, f)
	}
}

func (p *nativeProcessor) Close() error {
	if p.graph != nil {
		p.graph.Free()
		p.graph = nil
	}
	for _, f := range []*astiav.Frame{p.in, p.out} {
		if f != nil {
			f.Free()
		}
	}
	p.in, p.out = nil, nil
	return nil
}
