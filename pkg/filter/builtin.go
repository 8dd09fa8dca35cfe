package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harshabose/avpipe/pkg/media"
)

func init() {
	mustRegister(Definition{Name: "buffer", MediaType: media.MediaTypeVideo, role: roleSource,
		Options: []string{"video_size", "pix_fmt", "time_base", "frame_rate", "colorspace"},
		New:     newSourceProcessor(media.MediaTypeVideo)})
	mustRegister(Definition{Name: "abuffer", MediaType: media.MediaTypeAudio, role: roleSource,
		Options: []string{"time_base", "sample_rate", "sample_fmt", "channel_layout"},
		New:     newSourceProcessor(media.MediaTypeAudio)})
	mustRegister(Definition{Name: "buffersink", MediaType: media.MediaTypeVideo, role: roleSink, New: newSink})
	mustRegister(Definition{Name: "abuffersink", MediaType: media.MediaTypeAudio, role: roleSink, New: newSink})

	for _, t := range []struct {
		prefix string
		typ    media.MediaType
	}{{"", media.MediaTypeVideo}, {"a", media.MediaTypeAudio}} {
		mustRegister(Definition{Name: t.prefix + "null", MediaType: t.typ, New: newPassthrough(false)})
		mustRegister(Definition{Name: t.prefix + "copy", MediaType: t.typ, New: newPassthrough(true)})
		mustRegister(Definition{Name: t.prefix + "split", MediaType: t.typ, Options: []string{"outputs"}, New: newSplit})
		mustRegister(Definition{Name: t.prefix + "interleave", MediaType: t.typ, Options: []string{"nb_inputs"}, New: newInterleave})
		mustRegister(Definition{Name: t.prefix + "setpts", MediaType: t.typ, Options: []string{"expr"}, New: newSetPTS})
		mustRegister(Definition{Name: t.prefix + "nullsink", MediaType: t.typ, New: newNullSink})
	}
}

func newSink(Options) (Processor, error) {
	return &sinkProcessor{}, nil
}

// passthrough forwards frames untouched, or as deep copies.
type passthrough struct {
	clone bool
}

func newPassthrough(clone bool) func(Options) (Processor, error) {
	return func(Options) (Processor, error) {
		return &passthrough{clone: clone}, nil
	}
}

func (p *passthrough) NumInputs() int  { return 1 }
func (p *passthrough) NumOutputs() int { return 1 }

func (p *passthrough) Negotiate(in []media.Format) ([]media.Format, error) {
	return in, nil
}

func (p *passthrough) Process(_ int, frame *media.Frame, emit func(int, *media.Frame)) error {
	if frame == nil || !p.clone {
		emit(0, frame)
		return nil
	}
	c, err := frame.Clone()
	frame.Unref()
	if err != nil {
		return err
	}
	emit(0, c)
	return nil
}

// split hands a reference of every frame to each output.
type split struct {
	outputs int
}

func newSplit(o Options) (Processor, error) {
	n, err := o.Int("outputs", 2)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("split outputs=%d: %w", n, ErrInvalidArgument)
	}
	return &split{outputs: n}, nil
}

func (s *split) NumInputs() int  { return 1 }
func (s *split) NumOutputs() int { return s.outputs }

func (s *split) Negotiate(in []media.Format) ([]media.Format, error) {
	out := make([]media.Format, s.outputs)
	for i := range out {
		out[i] = in[0]
	}
	return out, nil
}

func (s *split) Process(_ int, frame *media.Frame, emit func(int, *media.Frame)) error {
	if frame == nil {
		for i := 0; i < s.outputs; i++ {
			emit(i, nil)
		}
		return nil
	}
	for i := 1; i < s.outputs; i++ {
		r := media.NewFrame()
		if err := r.Ref(frame); err != nil {
			frame.Unref()
			return err
		}
		emit(i, r)
	}
	emit(0, frame)
	return nil
}

// interleave merges its inputs into one stream ordered by PTS. A frame is
// released once every input still running has one queued.
type interleave struct {
	inputs  int
	pending [][]*media.Frame
	ended   []bool
	done    bool
}

func newInterleave(o Options) (Processor, error) {
	n, err := o.Int("nb_inputs", 2)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("interleave nb_inputs=%d: %w", n, ErrInvalidArgument)
	}
	return &interleave{inputs: n, pending: make([][]*media.Frame, n), ended: make([]bool, n)}, nil
}

func (s *interleave) NumInputs() int  { return s.inputs }
func (s *interleave) NumOutputs() int { return 1 }

func (s *interleave) Negotiate(in []media.Format) ([]media.Format, error) {
	for i := 1; i < len(in); i++ {
		if !sameFormat(in[0], in[i]) || in[0].TimeBase != in[i].TimeBase {
			return nil, fmt.Errorf("interleave input %d is %s, input 0 is %s: %w", i, in[i], in[0], media.ErrFormatMismatch)
		}
	}
	return in[:1], nil
}

func (s *interleave) Process(in int, frame *media.Frame, emit func(int, *media.Frame)) error {
	if frame == nil {
		s.ended[in] = true
	} else {
		s.pending[in] = append(s.pending[in], frame)
	}

	for {
		next := -1
		for i := range s.pending {
			if len(s.pending[i]) == 0 {
				if !s.ended[i] {
					return nil
				}
				continue
			}
			if next < 0 || s.pending[i][0].PTS < s.pending[next][0].PTS {
				next = i
			}
		}
		if next < 0 {
			break
		}
		emit(0, s.pending[next][0])
		s.pending[next] = s.pending[next][1:]
	}

	if !s.done {
		s.done = true
		emit(0, nil)
	}
	return nil
}

// setPTS rewrites timestamps. Only the identity and the shift to zero are
// understood.
type setPTS struct {
	shift bool
	start int64
	seen  bool
}

func newSetPTS(o Options) (Processor, error) {
	expr := strings.ReplaceAll(o.String("expr", "PTS"), " ", "")
	switch expr {
	case "PTS":
		return &setPTS{}, nil
	case "PTS-STARTPTS":
		return &setPTS{shift: true}, nil
	}
	return nil, fmt.Errorf("setpts expression %q: %w", expr, ErrInvalidArgument)
}

func (s *setPTS) NumInputs() int  { return 1 }
func (s *setPTS) NumOutputs() int { return 1 }

func (s *setPTS) Negotiate(in []media.Format) ([]media.Format, error) {
	return in, nil
}

func (s *setPTS) Process(_ int, frame *media.Frame, emit func(int, *media.Frame)) error {
	if frame != nil && s.shift && frame.PTS != media.NoTimestamp {
		if !s.seen {
			s.start = frame.PTS
			s.seen = true
		}
		frame.PTS -= s.start
	}
	emit(0, frame)
	return nil
}

type nullSink struct{}

func newNullSink(Options) (Processor, error) {
	return nullSink{}, nil
}

func (nullSink) NumInputs() int  { return 1 }
func (nullSink) NumOutputs() int { return 0 }

func (nullSink) Negotiate([]media.Format) ([]media.Format, error) {
	return nil, nil
}

func (nullSink) Process(_ int, frame *media.Frame, _ func(int, *media.Frame)) error {
	if frame != nil {
		frame.Unref()
	}
	return nil
}

// Describe lists the registered kinds with their media type, for help output.
func Describe() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	lines := make([]string, 0, len(registry))
	for name, d := range registry {
		lines = append(lines, fmt.Sprintf("%-12s %-7s %s", name, d.MediaType, strings.Join(d.Options, ":")))
	}
	sort.Strings(lines)
	return lines
}
