package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

type phase int

const (
	phaseBuilding phase = iota
	phaseConfigured
)

type GraphOption = func(*Graph) error

// WithThreads sets the thread count handed to nodes that run their own
// workers. Zero leaves the choice to the node.
func WithThreads(n int) GraphOption {
	return func(g *Graph) error {
		if n < 0 {
			return fmt.Errorf("thread count %d: %w", n, ErrInvalidArgument)
		}
		g.threads = n
		return nil
	}
}

// Graph is a directed acyclic graph of filter nodes. It is built, then
// configured once, then fed through its buffer sources and drained through
// its buffer sinks. A Graph is not safe for concurrent use.
type Graph struct {
	phase   phase
	threads int
	nodes   []*Node
	names   map[string]*Node
	serial  map[string]int
	order   []*Node
	sources []*BufferSource
	sinks   []*BufferSink
}

func NewGraph(options ...GraphOption) (*Graph, error) {
	g := &Graph{
		names:  make(map[string]*Node),
		serial: make(map[string]int),
	}
	for _, option := range options {
		if err := option(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) log() *logrus.Entry {
	return logging.WithComponent("filter")
}

func (g *Graph) Threads() int {
	return g.threads
}

func (g *Graph) Configured() bool {
	return g.phase == phaseConfigured
}

func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.names[name]
	return n, ok
}

// Nodes returns the nodes in creation order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

func (g *Graph) Sources() []*BufferSource {
	return append([]*BufferSource(nil), g.sources...)
}

func (g *Graph) Sinks() []*BufferSink {
	return append([]*BufferSink(nil), g.sinks...)
}

// AddNode creates a node of the given kind with an automatic name and links
// inputs, in order, to its input ports.
func (g *Graph) AddNode(kind string, args Args, inputs ...*Port) (*Node, error) {
	return g.AddNamedNode("", kind, args, inputs...)
}

// AddNamedNode is AddNode with an explicit node name. On failure the graph is
// left as it was.
func (g *Graph) AddNamedNode(name, kind string, args Args, inputs ...*Port) (*Node, error) {
	if g.phase != phaseBuilding {
		return nil, fmt.Errorf("adding %s to a configured graph: %w", kind, ErrInvalidState)
	}

	def, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownFilter)
	}
	if def.role != roleFilter {
		return nil, fmt.Errorf("%s nodes are created with AddBufferSource and AddBufferSink: %w", kind, ErrInvalidArgument)
	}

	serial, counted := g.serial[def.Name]
	n, err := g.newNode(name, def, args)
	if err == nil {
		err = g.checkInputs(n, inputs)
	}
	if err != nil {
		if counted {
			g.serial[def.Name] = serial
		} else {
			delete(g.serial, def.Name)
		}
		return nil, err
	}

	g.attach(n)
	for i, in := range inputs {
		g.connect(in, n.inputs[i])
	}
	return n, nil
}

// newNode builds a detached node: options applied, processor created and
// ports allocated. Nothing in the graph changes.
func (g *Graph) newNode(name string, def Definition, args Args) (*Node, error) {
	options, err := def.resolve(args)
	if err != nil {
		return nil, err
	}
	proc, err := def.New(options)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", def.Name, err)
	}
	if t, ok := proc.(interface{ SetThreads(int) }); ok && g.threads > 0 {
		t.SetThreads(g.threads)
	}

	if name == "" {
		name = g.nextName(def.Name)
	}
	if _, exists := g.names[name]; exists {
		return nil, fmt.Errorf("node name %q already used: %w", name, ErrInvalidArgument)
	}

	n := &Node{graph: g, name: name, def: def, options: options, proc: proc}
	for i := 0; i < proc.NumInputs(); i++ {
		n.inputs = append(n.inputs, &Port{node: n, index: i, direction: DirectionInput, mediaType: def.MediaType})
	}
	for i := 0; i < proc.NumOutputs(); i++ {
		n.outputs = append(n.outputs, &Port{node: n, index: i, direction: DirectionOutput, mediaType: def.MediaType})
	}
	return n, nil
}

func (g *Graph) nextName(kind string) string {
	for {
		name := fmt.Sprintf("%s_%d", kind, g.serial[kind])
		g.serial[kind]++
		if _, exists := g.names[name]; !exists {
			return name
		}
	}
}

func (g *Graph) checkInputs(n *Node, inputs []*Port) error {
	if len(inputs) != len(n.inputs) {
		return fmt.Errorf("%s takes %d inputs, got %d: %w", n.def.Name, len(n.inputs), len(inputs), ErrArity)
	}

	seen := make(map[*Port]struct{}, len(inputs))
	for i, in := range inputs {
		if err := g.checkLink(in, n.inputs[i]); err != nil {
			return err
		}
		if _, dup := seen[in]; dup {
			return fmt.Errorf("%s used twice: %w", in, ErrLink)
		}
		seen[in] = struct{}{}
	}
	return nil
}

func (g *Graph) checkLink(out, in *Port) error {
	switch {
	case out == nil || in == nil:
		return fmt.Errorf("nil port: %w", ErrLink)
	case out.direction != DirectionOutput:
		return fmt.Errorf("%s is not an output: %w", out, ErrLink)
	case in.direction != DirectionInput:
		return fmt.Errorf("%s is not an input: %w", in, ErrLink)
	case out.node.graph != g || in.node.graph != g:
		return fmt.Errorf("%s -> %s crosses graphs: %w", out, in, ErrLink)
	case out.peer != nil:
		return fmt.Errorf("%s already connected to %s: %w", out, out.peer, ErrLink)
	case in.peer != nil:
		return fmt.Errorf("%s already connected to %s: %w", in, in.peer, ErrLink)
	}

	a, b := out.mediaType, in.mediaType
	if a != media.MediaTypeUnknown && b != media.MediaTypeUnknown && a != b {
		return fmt.Errorf("%s carries %s, %s expects %s: %w", out, a, in, b, ErrLink)
	}
	return nil
}

func (g *Graph) attach(n *Node) {
	g.nodes = append(g.nodes, n)
	g.names[n.name] = n
}

// detach removes a node added during a failed Parse. Its links go with it.
func (g *Graph) detach(n *Node) {
	for _, p := range append(append([]*Port(nil), n.inputs...), n.outputs...) {
		if p.peer != nil {
			p.peer.peer = nil
			p.peer = nil
		}
	}
	delete(g.names, n.name)
	for i, candidate := range g.nodes {
		if candidate == n {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
}

func (g *Graph) connect(out, in *Port) {
	out.peer = in
	in.peer = out

	// nodes that take any media inherit it from upstream
	if in.mediaType == media.MediaTypeUnknown && out.mediaType != media.MediaTypeUnknown {
		node := in.node
		for _, p := range node.inputs {
			if p.mediaType == media.MediaTypeUnknown {
				p.mediaType = out.mediaType
			}
		}
		for _, p := range node.outputs {
			if p.mediaType == media.MediaTypeUnknown {
				p.mediaType = out.mediaType
			}
		}
	}
}

// Link connects an existing output port to an existing input port.
func (g *Graph) Link(out, in *Port) error {
	if g.phase != phaseBuilding {
		return fmt.Errorf("linking in a configured graph: %w", ErrInvalidState)
	}
	if err := g.checkLink(out, in); err != nil {
		return err
	}
	g.connect(out, in)
	return nil
}

// Configure validates the graph and negotiates formats. Every port must be
// connected and the graph acyclic. Structural changes fail afterwards.
func (g *Graph) Configure() error {
	if g.phase != phaseBuilding {
		return fmt.Errorf("graph already configured: %w", ErrInvalidState)
	}
	if len(g.sources) == 0 {
		return fmt.Errorf("graph without buffer source: %w", ErrLink)
	}

	var dangling []string
	for _, n := range g.nodes {
		for _, p := range append(append([]*Port(nil), n.inputs...), n.outputs...) {
			if p.peer == nil {
				dangling = append(dangling, p.String())
			}
		}
	}
	if len(dangling) > 0 {
		return fmt.Errorf("unconnected ports %s: %w", strings.Join(dangling, ", "), ErrLink)
	}

	order, err := g.sort()
	if err != nil {
		return err
	}

	negotiated := make(map[*Port]media.Format)
	for _, n := range order {
		in := make([]media.Format, len(n.inputs))
		for i, p := range n.inputs {
			in[i] = negotiated[p.peer]
		}
		out, err := n.proc.Negotiate(in)
		if err != nil {
			return fmt.Errorf("negotiating %s: %w", n.name, err)
		}
		if len(out) != len(n.outputs) {
			return fmt.Errorf("%s negotiated %d outputs for %d ports: %w", n.name, len(out), len(n.outputs), ErrArity)
		}
		for i, p := range n.outputs {
			negotiated[p] = out[i]
		}
	}

	for p, f := range negotiated {
		p.format = f
	}
	g.order = order
	g.phase = phaseConfigured

	g.log().WithFields(logrus.Fields{
		"nodes":   len(g.nodes),
		"sources": len(g.sources),
		"sinks":   len(g.sinks),
	}).Debug("filter graph configured")
	return nil
}

// sort orders nodes so every node comes after its producers.
func (g *Graph) sort() ([]*Node, error) {
	pending := make(map[*Node]int, len(g.nodes))
	var ready []*Node
	for _, n := range g.nodes {
		pending[n] = len(n.inputs)
		if len(n.inputs) == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, out := range n.outputs {
			next := out.peer.node
			pending[next]--
			if pending[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("graph contains a cycle: %w", ErrLink)
	}
	return order, nil
}

// evaluate runs every queued frame as far through the graph as it goes. One
// pass in topological order is enough since nodes only feed later nodes.
func (g *Graph) evaluate() error {
	for _, n := range g.order {
		switch n.def.role {
		case roleSource:
			src := n.proc.(*sourceProcessor)
			for _, f := range src.take() {
				n.emit(0, f)
			}
		case roleSink:
			// read by BufferSink.ReceiveFrame
		default:
			for i, p := range n.inputs {
				for {
					f, ok := p.pop()
					if !ok {
						break
					}
					if err := n.proc.Process(i, f, n.emit); err != nil {
						return fmt.Errorf("%s: %w", n.name, err)
					}
				}
			}
		}
	}
	return nil
}

// Close drops every frame still queued inside the graph and releases native
// nodes.
func (g *Graph) Close() error {
	var errs []error
	for _, n := range g.nodes {
		for _, p := range n.inputs {
			p.drop()
		}
		if src, ok := n.proc.(*sourceProcessor); ok {
			for _, f := range src.take() {
				if f != nil {
					f.Unref()
				}
			}
		}
		if c, ok := n.proc.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", n.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
