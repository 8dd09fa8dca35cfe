package filter

import (
	"fmt"
	"strings"
)

const (
	defaultInputLabel  = "in"
	defaultOutputLabel = "out"
)

type parsedFilter struct {
	inLabels  []string
	kind      string
	instance  string
	args      Args
	outLabels []string
}

// Parse adds the filters described by segment and wires them up.
//
// Segment syntax: chains are separated by ';' or newlines, filters within a
// chain by ','. A filter is written as
//
//	[in1][in2] kind@instance=key=value:positional [out1]
//
// Values may be quoted with single quotes and characters escaped with '\'.
// Consecutive filters in a chain are linked through their unlabeled pads. An
// unlabeled input pad left over defaults to the label "in", an unlabeled
// output pad to "out".
//
// inputs binds the segment's input labels to the caller's output ports: what
// feeds the segment. The result maps the segment's unconsumed output labels to
// the new output ports the caller links onwards. A label used as both an input
// and an output of the segment links the two internally.
//
// Parse either applies the whole segment or leaves the graph unchanged.
func (g *Graph) Parse(segment string, inputs map[string]*Port) (map[string]*Port, error) {
	if g.phase != phaseBuilding {
		return nil, fmt.Errorf("parsing into a configured graph: %w", ErrInvalidState)
	}
	chains, err := parseSegment(segment)
	if err != nil {
		return nil, err
	}

	serial := make(map[string]int, len(g.serial))
	for k, v := range g.serial {
		serial[k] = v
	}
	var created []*Node
	outputs, err := g.apply(chains, inputs, &created)
	if err != nil {
		for i := len(created) - 1; i >= 0; i-- {
			g.detach(created[i])
		}
		g.serial = serial
		return nil, err
	}

	g.log().WithField("segment", segment).Debug("parsed filter segment")
	return outputs, nil
}

type padRef struct {
	label string
	port  *Port
}

func (g *Graph) apply(chains [][]parsedFilter, inputs map[string]*Port, created *[]*Node) (map[string]*Port, error) {
	var (
		inPads  []padRef
		outPads []padRef
		usedIn  bool
		usedOut bool
	)

	for _, chain := range chains {
		var open []*Port
		for fi, pf := range chain {
			def, ok := Lookup(pf.kind)
			if !ok {
				return nil, fmt.Errorf("%q: %w", pf.kind, ErrUnknownFilter)
			}
			if def.role != roleFilter {
				return nil, fmt.Errorf("%s cannot appear in a segment: %w", pf.kind, ErrInvalidArgument)
			}
			name := ""
			if pf.instance != "" {
				name = pf.kind + "@" + pf.instance
			}
			n, err := g.newNode(name, def, pf.args)
			if err != nil {
				return nil, err
			}
			g.attach(n)
			*created = append(*created, n)

			if len(pf.inLabels) > len(n.inputs) {
				return nil, fmt.Errorf("%s has %d inputs, %d labels given: %w", n.name, len(n.inputs), len(pf.inLabels), ErrArity)
			}
			for i, label := range pf.inLabels {
				inPads = append(inPads, padRef{label: label, port: n.inputs[i]})
			}
			rest := n.inputs[len(pf.inLabels):]
			if len(open) > len(rest) {
				return nil, fmt.Errorf("%s cannot take %d chained inputs: %w", n.name, len(open), ErrArity)
			}
			for i, out := range open {
				if err := g.Link(out, rest[i]); err != nil {
					return nil, err
				}
			}
			for _, p := range rest[len(open):] {
				if usedIn || fi > 0 {
					return nil, fmt.Errorf("%s left without input: %w", p, ErrLink)
				}
				usedIn = true
				inPads = append(inPads, padRef{label: defaultInputLabel, port: p})
			}

			if len(pf.outLabels) > len(n.outputs) {
				return nil, fmt.Errorf("%s has %d outputs, %d labels given: %w", n.name, len(n.outputs), len(pf.outLabels), ErrArity)
			}
			for i, label := range pf.outLabels {
				outPads = append(outPads, padRef{label: label, port: n.outputs[i]})
			}
			open = n.outputs[len(pf.outLabels):]
		}

		for _, p := range open {
			if usedOut {
				return nil, fmt.Errorf("%s left without output: %w", p, ErrLink)
			}
			usedOut = true
			outPads = append(outPads, padRef{label: defaultOutputLabel, port: p})
		}
	}

	produced := make(map[string]*Port, len(outPads))
	for _, pad := range outPads {
		if _, dup := produced[pad.label]; dup {
			return nil, fmt.Errorf("output label %q used twice: %w", pad.label, ErrLink)
		}
		produced[pad.label] = pad.port
	}

	consumed := make(map[string]struct{}, len(inPads))
	bound := make(map[string]struct{}, len(inputs))
	for _, pad := range inPads {
		if _, dup := consumed[pad.label]; dup {
			return nil, fmt.Errorf("input label %q used twice: %w", pad.label, ErrLink)
		}
		consumed[pad.label] = struct{}{}

		if out, ok := produced[pad.label]; ok {
			if err := g.Link(out, pad.port); err != nil {
				return nil, err
			}
			delete(produced, pad.label)
			continue
		}
		out, ok := inputs[pad.label]
		if !ok {
			return nil, fmt.Errorf("input label %q not bound: %w", pad.label, ErrLink)
		}
		if err := g.Link(out, pad.port); err != nil {
			return nil, fmt.Errorf("input label %q: %w", pad.label, err)
		}
		bound[pad.label] = struct{}{}
	}

	for label := range inputs {
		if _, ok := bound[label]; !ok {
			return nil, fmt.Errorf("input label %q not used by segment: %w", label, ErrLink)
		}
	}
	return produced, nil
}

func parseSegment(s string) ([][]parsedFilter, error) {
	p := &segmentParser{s: s}
	var chains [][]parsedFilter
	var chain []parsedFilter

	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		f, err := p.filter()
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)

		p.skipSpace()
		if p.eof() {
			break
		}
		switch c := p.next(); c {
		case ',':
		case ';', '\n':
			chains = append(chains, chain)
			chain = nil
		default:
			return nil, p.errorf("unexpected %q", c)
		}
	}
	if len(chain) > 0 {
		chains = append(chains, chain)
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("empty segment: %w", ErrParse)
	}
	return chains, nil
}

type segmentParser struct {
	s   string
	pos int
}

func (p *segmentParser) eof() bool {
	return p.pos >= len(p.s)
}

func (p *segmentParser) peek() byte {
	return p.s[p.pos]
}

func (p *segmentParser) next() byte {
	c := p.s[p.pos]
	p.pos++
	return c
}

func (p *segmentParser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\r') {
		p.pos++
	}
}

func (p *segmentParser) errorf(format string, args ...any) error {
	return fmt.Errorf("at offset %d: %s: %w", p.pos, fmt.Sprintf(format, args...), ErrParse)
}

func (p *segmentParser) filter() (parsedFilter, error) {
	var f parsedFilter
	var err error

	if f.inLabels, err = p.labels(); err != nil {
		return f, err
	}
	p.skipSpace()

	if f.kind = p.identifier(); f.kind == "" {
		return f, p.errorf("filter name expected")
	}
	if !p.eof() && p.peek() == '@' {
		p.pos++
		if f.instance = p.identifier(); f.instance == "" {
			return f, p.errorf("instance name expected")
		}
	}
	if !p.eof() && p.peek() == '=' {
		p.pos++
		if f.args, err = p.arguments(); err != nil {
			return f, err
		}
	}

	p.skipSpace()
	if f.outLabels, err = p.labels(); err != nil {
		return f, err
	}
	return f, nil
}

func (p *segmentParser) labels() ([]string, error) {
	var labels []string
	for {
		p.skipSpace()
		if p.eof() || p.peek() != '[' {
			return labels, nil
		}
		end := strings.IndexByte(p.s[p.pos:], ']')
		if end < 0 {
			return nil, p.errorf("unterminated label")
		}
		label := strings.TrimSpace(p.s[p.pos+1 : p.pos+end])
		if label == "" {
			return nil, p.errorf("empty label")
		}
		labels = append(labels, label)
		p.pos += end + 1
	}
}

func (p *segmentParser) identifier() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '_' || c == '-' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos]
}

// arguments reads "k=v:positional:k2='quoted:value'" up to the next
// unquoted separator.
func (p *segmentParser) arguments() (Args, error) {
	var (
		args   Args
		cur    strings.Builder
		key    string
		hasKey bool
		quoted bool
	)
	flush := func() {
		value := strings.TrimSpace(cur.String())
		if hasKey || value != "" {
			args = append(args, Arg{Key: key, Value: value})
		}
		cur.Reset()
		key, hasKey = "", false
	}

	for !p.eof() {
		c := p.peek()
		if quoted {
			p.pos++
			if c == '\'' {
				quoted = false
			} else {
				cur.WriteByte(c)
			}
			continue
		}

		switch c {
		case '\\':
			p.pos++
			if p.eof() {
				return nil, p.errorf("dangling escape")
			}
			cur.WriteByte(p.next())
			continue
		case '\'':
			quoted = true
		case '=':
			if hasKey {
				cur.WriteByte(c)
			} else {
				key, hasKey = strings.TrimSpace(cur.String()), true
				cur.Reset()
			}
		case ':':
			flush()
		case ',', ';', '\n', '[':
			flush()
			return args, nil
		default:
			cur.WriteByte(c)
		}
		p.pos++
	}
	if quoted {
		return nil, p.errorf("unterminated quote")
	}
	flush()
	return args, nil
}
