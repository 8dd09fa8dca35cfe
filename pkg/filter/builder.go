package filter

import (
	"fmt"
	"strings"
)

// Chain is a configured graph with one buffer source and one buffer sink.
type Chain struct {
	Graph  *Graph
	Source *BufferSource
	Sink   *BufferSink
}

func (c *Chain) Close() error {
	return c.Graph.Close()
}

// Builder keeps the description of a single input, single output chain and
// builds it once the input format is known.
type Builder struct {
	content []string
	options []GraphOption
	matrix  *[9]int32
}

func NewBuilder(content string, options ...GraphOption) *Builder {
	b := &Builder{options: options}
	b.AddToContent(content)
	return b
}

// AddToContent appends filters to the end of the chain.
func (b *Builder) AddToContent(content string) {
	if content = strings.TrimSpace(content); content != "" {
		b.content = append(b.content, content)
	}
}

func (b *Builder) Content() string {
	return strings.Join(b.content, ",")
}

// SetDisplayMatrix makes Build rotate pictures upright before the chain.
func (b *Builder) SetDisplayMatrix(matrix [9]int32) {
	b.matrix = &matrix
}

func (b *Builder) Build(params SourceParams) (*Chain, error) {
	g, err := NewGraph(b.options...)
	if err != nil {
		return nil, err
	}
	chain, err := b.build(g, params)
	if err != nil {
		_ = g.Close()
		return nil, err
	}
	return chain, nil
}

func (b *Builder) build(g *Graph, params SourceParams) (*Chain, error) {
	if params.Name == "" {
		params.Name = "in"
	}
	src, err := g.AddBufferSource(params)
	if err != nil {
		return nil, err
	}

	out := src.Output()
	if b.matrix != nil {
		if out, err = g.AutoRotate(out, *b.matrix); err != nil {
			return nil, err
		}
	}

	if content := b.Content(); content != "" {
		outputs, err := g.Parse(content, map[string]*Port{defaultInputLabel: out})
		if err != nil {
			return nil, err
		}
		var ok bool
		if out, ok = outputs[defaultOutputLabel]; !ok || len(outputs) != 1 {
			return nil, fmt.Errorf("chain %q must have exactly one output: %w", content, ErrLink)
		}
	} else {
		g.log().Debug("no filter content, frames pass through")
	}

	sink, err := g.AddNamedBufferSink("out", out)
	if err != nil {
		return nil, err
	}
	if err := g.Configure(); err != nil {
		return nil, err
	}
	return &Chain{Graph: g, Source: src, Sink: sink}, nil
}
