package filter

import (
	"fmt"

	"github.com/harshabose/avpipe/pkg/media"
)

type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	if d == DirectionOutput {
		return "output"
	}
	return "input"
}

// Port is one connection point of a node. Output ports feed exactly one
// input port; fan-out takes a split node.
type Port struct {
	node      *Node
	index     int
	direction Direction
	mediaType media.MediaType
	peer      *Port

	// output ports: negotiated format
	format media.Format
	// input ports: frames waiting to be processed, nil marks end of stream
	queue []*media.Frame
}

func (p *Port) Node() *Node {
	return p.node
}

func (p *Port) Index() int {
	return p.index
}

func (p *Port) Direction() Direction {
	return p.direction
}

// MediaType is known at build time for every port whose node or upstream
// fixes it.
func (p *Port) MediaType() media.MediaType {
	return p.mediaType
}

func (p *Port) Connected() bool {
	return p.peer != nil
}

func (p *Port) Peer() *Port {
	return p.peer
}

// Format returns the negotiated format of the frames crossing the port. It is
// only set once the graph is configured.
func (p *Port) Format() media.Format {
	if p.direction == DirectionInput && p.peer != nil {
		return p.peer.format
	}
	return p.format
}

func (p *Port) String() string {
	return fmt.Sprintf("%s:%s%d", p.node.name, p.direction, p.index)
}

func (p *Port) push(frame *media.Frame) {
	p.queue = append(p.queue, frame)
}

func (p *Port) pop() (*media.Frame, bool) {
	if len(p.queue) == 0 {
		return nil, false
	}
	f := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return f, true
}

func (p *Port) drop() {
	for _, f := range p.queue {
		if f != nil {
			f.Unref()
		}
	}
	p.queue = nil
}

// Node is one filter instance inside a graph.
type Node struct {
	graph   *Graph
	name    string
	def     Definition
	options Options
	proc    Processor
	inputs  []*Port
	outputs []*Port
}

func (n *Node) Name() string {
	return n.name
}

// Kind returns the filter kind the node was created from.
func (n *Node) Kind() string {
	return n.def.Name
}

func (n *Node) Options() Options {
	return n.options
}

func (n *Node) Inputs() []*Port {
	return n.inputs
}

func (n *Node) Outputs() []*Port {
	return n.outputs
}

func (n *Node) Input(i int) *Port {
	if i < 0 || i >= len(n.inputs) {
		return nil
	}
	return n.inputs[i]
}

func (n *Node) Output(i int) *Port {
	if i < 0 || i >= len(n.outputs) {
		return nil
	}
	return n.outputs[i]
}

func (n *Node) emit(out int, frame *media.Frame) {
	port := n.Output(out)
	if port == nil || port.peer == nil {
		if frame != nil {
			frame.Unref()
		}
		return
	}
	port.peer.push(frame)
}
