package filter

import (
	"fmt"
	"strconv"

	"github.com/harshabose/avpipe/pkg/media"
)

// SourceParams describes the frames a buffer source accepts.
type SourceParams struct {
	Name      string
	Format    media.Format
	FrameRate media.Rational
}

func (p SourceParams) args() (string, Args, error) {
	tb := p.Format.TimeBase
	switch p.Format.Type {
	case media.MediaTypeAudio:
		a := p.Format.Audio
		if err := a.Validate(); err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if tb.IsZero() {
			tb = media.NewRational(1, a.SampleRate)
		}
		return "abuffer", KV(
			"sample_rate", strconv.Itoa(a.SampleRate),
			"sample_fmt", a.SampleFormat.String(),
			"channel_layout", a.Layout.String(),
			"time_base", tb.String(),
		), nil
	case media.MediaTypeVideo:
		v := p.Format.Video
		if err := v.Validate(); err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if tb.IsZero() {
			if p.FrameRate.IsZero() {
				return "", nil, fmt.Errorf("video source without time base or frame rate: %w", ErrInvalidArgument)
			}
			tb = p.FrameRate.Invert()
		}
		args := KV(
			"video_size", fmt.Sprintf("%dx%d", v.Width, v.Height),
			"pix_fmt", v.PixelFormat.String(),
			"colorspace", v.ColorSpace.String(),
			"time_base", tb.String(),
		)
		if !p.FrameRate.IsZero() {
			args = append(args, Arg{Key: "frame_rate", Value: p.FrameRate.String()})
		}
		return "buffer", args, nil
	default:
		return "", nil, fmt.Errorf("source for %s: %w", p.Format.Type, ErrInvalidArgument)
	}
}

// AddBufferSource creates the node frames enter the graph through.
func (g *Graph) AddBufferSource(params SourceParams) (*BufferSource, error) {
	if g.phase != phaseBuilding {
		return nil, fmt.Errorf("adding source to a configured graph: %w", ErrInvalidState)
	}
	kind, args, err := params.args()
	if err != nil {
		return nil, err
	}
	def, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownFilter)
	}

	n, err := g.newNode(params.Name, def, args)
	if err != nil {
		return nil, err
	}
	g.attach(n)

	src := &BufferSource{node: n, proc: n.proc.(*sourceProcessor)}
	g.sources = append(g.sources, src)
	return src, nil
}

// AddBufferSink creates the node frames leave the graph through, fed by in.
func (g *Graph) AddBufferSink(in *Port) (*BufferSink, error) {
	return g.AddNamedBufferSink("", in)
}

func (g *Graph) AddNamedBufferSink(name string, in *Port) (*BufferSink, error) {
	if g.phase != phaseBuilding {
		return nil, fmt.Errorf("adding sink to a configured graph: %w", ErrInvalidState)
	}
	if in == nil {
		return nil, fmt.Errorf("sink without input: %w", ErrArity)
	}

	kind := "buffersink"
	if in.mediaType == media.MediaTypeAudio {
		kind = "abuffersink"
	}
	def, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownFilter)
	}
	if in.mediaType == media.MediaTypeUnknown {
		// untyped upstream: accept whatever arrives
		def.MediaType = media.MediaTypeUnknown
	}

	n, err := g.newNode(name, def, nil)
	if err != nil {
		return nil, err
	}
	if err := g.checkInputs(n, []*Port{in}); err != nil {
		return nil, err
	}
	g.attach(n)
	g.connect(in, n.inputs[0])

	sink := &BufferSink{node: n, proc: n.proc.(*sinkProcessor)}
	g.sinks = append(g.sinks, sink)
	return sink, nil
}

// BufferSource pushes frames into a configured graph.
type BufferSource struct {
	node *Node
	proc *sourceProcessor
}

func (s *BufferSource) Node() *Node {
	return s.node
}

func (s *BufferSource) Output() *Port {
	return s.node.outputs[0]
}

func (s *BufferSource) Format() media.Format {
	return s.proc.format
}

// SendFrame queues frame for the graph without evaluating it. The graph takes
// its own reference; the caller keeps frame. A nil or empty frame ends the
// stream on this source's branch.
func (s *BufferSource) SendFrame(frame *media.Frame) error {
	if !s.node.graph.Configured() {
		return fmt.Errorf("sending to an unconfigured graph: %w", ErrInvalidState)
	}
	if s.proc.ended {
		return fmt.Errorf("sending to ended source %s: %w", s.node.name, ErrInvalidState)
	}

	if frame == nil || frame.IsEmpty() {
		s.proc.ended = true
		s.proc.pending = append(s.proc.pending, nil)
		return nil
	}

	if !sameFormat(frame.Format(), s.proc.format) {
		return fmt.Errorf("source %s expects %s, got %s: %w", s.node.name, s.proc.format, frame.Format(), media.ErrFormatMismatch)
	}

	f := media.NewFrame()
	if err := f.Ref(frame); err != nil {
		return err
	}
	tb := s.proc.format.TimeBase
	if !f.TimeBase.IsZero() && f.TimeBase != tb {
		f.PTS = media.Rescale(f.PTS, f.TimeBase, tb)
		f.Duration = media.Rescale(f.Duration, f.TimeBase, tb)
	}
	f.TimeBase = tb

	s.proc.pending = append(s.proc.pending, f)
	return nil
}

// PushFrame sends frame and runs the graph right away.
func (s *BufferSource) PushFrame(frame *media.Frame) error {
	if err := s.SendFrame(frame); err != nil {
		return err
	}
	return s.node.graph.evaluate()
}

// Ended reports whether end of stream was sent.
func (s *BufferSource) Ended() bool {
	return s.proc.ended
}

// BufferSink pulls filtered frames out of a configured graph.
type BufferSink struct {
	node  *Node
	proc  *sinkProcessor
	ended bool
}

func (s *BufferSink) Node() *Node {
	return s.node
}

func (s *BufferSink) Input() *Port {
	return s.node.inputs[0]
}

// Format returns the negotiated format of the frames the sink yields.
func (s *BufferSink) Format() media.Format {
	return s.Input().Format()
}

// ReceiveFrame moves the next filtered frame into frame, which is reset
// first. Unless onlyIfBuffered is set the graph is evaluated before looking.
// A false result with a nil error means no frame is available: either more
// input is needed or, once Ended reports true, the branch is finished.
func (s *BufferSink) ReceiveFrame(frame *media.Frame, onlyIfBuffered bool) (bool, error) {
	if !s.node.graph.Configured() {
		return false, fmt.Errorf("receiving from an unconfigured graph: %w", ErrInvalidState)
	}
	frame.Unref()

	if !onlyIfBuffered {
		if err := s.node.graph.evaluate(); err != nil {
			return false, err
		}
	}

	f, ok := s.Input().pop()
	if !ok {
		return false, nil
	}
	if f == nil {
		s.ended = true
		return false, nil
	}
	frame.MoveRef(f)
	return true, nil
}

// Ended reports whether end of stream reached the sink.
func (s *BufferSink) Ended() bool {
	return s.ended
}

// Buffered returns the number of frames waiting at the sink.
func (s *BufferSink) Buffered() int {
	n := 0
	for _, f := range s.Input().queue {
		if f != nil {
			n++
		}
	}
	return n
}

type sourceProcessor struct {
	format  media.Format
	rate    media.Rational
	pending []*media.Frame
	ended   bool
}

func newSourceProcessor(typ media.MediaType) func(Options) (Processor, error) {
	return func(o Options) (Processor, error) {
		p := &sourceProcessor{format: media.Format{Type: typ}}
		var err error
		if p.format.TimeBase, err = media.ParseRational(o.String("time_base", "")); err != nil {
			return nil, fmt.Errorf("time_base: %w: %w", ErrInvalidArgument, err)
		}
		if r, ok := o["frame_rate"]; ok {
			if p.rate, err = media.ParseRational(r); err != nil {
				return nil, fmt.Errorf("frame_rate: %w: %w", ErrInvalidArgument, err)
			}
		}

		switch typ {
		case media.MediaTypeAudio:
			a := &p.format.Audio
			if a.SampleRate, err = o.Int("sample_rate", 0); err != nil {
				return nil, err
			}
			if a.SampleFormat, err = media.ParseSampleFormat(o.String("sample_fmt", "")); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
			}
			if a.Layout, err = media.ParseChannelLayout(o.String("channel_layout", "")); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
			}
			err = a.Validate()
		case media.MediaTypeVideo:
			v := &p.format.Video
			if _, err := fmt.Sscanf(o.String("video_size", ""), "%dx%d", &v.Width, &v.Height); err != nil {
				return nil, fmt.Errorf("video_size: %w: %w", ErrInvalidArgument, err)
			}
			if v.PixelFormat, err = media.ParsePixelFormat(o.String("pix_fmt", "")); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
			}
			if cs, ok := o["colorspace"]; ok {
				if v.ColorSpace, err = media.ParseColorSpace(cs); err != nil {
					return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
				}
			}
			err = v.Validate()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if p.format.TimeBase.IsZero() {
			return nil, fmt.Errorf("source without time base: %w", ErrInvalidArgument)
		}
		return p, nil
	}
}

func (p *sourceProcessor) NumInputs() int  { return 0 }
func (p *sourceProcessor) NumOutputs() int { return 1 }

func (p *sourceProcessor) Negotiate([]media.Format) ([]media.Format, error) {
	return []media.Format{p.format}, nil
}

func (p *sourceProcessor) Process(int, *media.Frame, func(int, *media.Frame)) error {
	return fmt.Errorf("buffer source has no inputs: %w", ErrInvalidState)
}

func (p *sourceProcessor) take() []*media.Frame {
	pending := p.pending
	p.pending = nil
	return pending
}

type sinkProcessor struct {
	format media.Format
}

func (p *sinkProcessor) NumInputs() int  { return 1 }
func (p *sinkProcessor) NumOutputs() int { return 0 }

func (p *sinkProcessor) Negotiate(in []media.Format) ([]media.Format, error) {
	p.format = in[0]
	return nil, nil
}

func (p *sinkProcessor) Process(int, *media.Frame, func(int, *media.Frame)) error {
	return fmt.Errorf("buffer sink is drained by ReceiveFrame: %w", ErrInvalidState)
}

// sameFormat compares what a frame carries, ignoring time base and color
// metadata.
func sameFormat(a, b media.Format) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case media.MediaTypeAudio:
		return a.Audio.SampleFormat == b.Audio.SampleFormat &&
			a.Audio.SampleRate == b.Audio.SampleRate &&
			a.Audio.Channels() == b.Audio.Channels()
	case media.MediaTypeVideo:
		return a.Video.Width == b.Video.Width &&
			a.Video.Height == b.Video.Height &&
			a.Video.PixelFormat == b.Video.PixelFormat
	}
	return false
}
