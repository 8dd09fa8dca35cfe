package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegmentSyntax(t *testing.T) {
	chains, err := parseSegment(`[a][b] interleave@merge=nb_inputs=2 [c]; [c] volume='1.5':x\:y, anull`)
	require.NoError(t, err)
	require.Len(t, chains, 2)

	first := chains[0][0]
	assert.Equal(t, []string{"a", "b"}, first.inLabels)
	assert.Equal(t, "interleave", first.kind)
	assert.Equal(t, "merge", first.instance)
	assert.Equal(t, KV("nb_inputs", "2"), first.args)
	assert.Equal(t, []string{"c"}, first.outLabels)

	require.Len(t, chains[1], 2)
	second := chains[1][0]
	assert.Equal(t, []string{"c"}, second.inLabels)
	assert.Equal(t, Args{{Value: "1.5"}, {Value: "x:y"}}, second.args)
	assert.Equal(t, "anull", chains[1][1].kind)
}

func TestParseSegmentNewlineSeparatesChains(t *testing.T) {
	chains, err := parseSegment("null\nnull")
	require.NoError(t, err)
	assert.Len(t, chains, 2)
}

func TestParseSegmentErrors(t *testing.T) {
	for _, segment := range []string{
		"",
		"  ",
		"[in hflip",
		"[]hflip",
		"transpose='clock",
		"hflip vflip",
		"volume=1\\",
	} {
		_, err := parseSegment(segment)
		assert.ErrorIs(t, err, ErrParse, segment)
	}
}

func TestParseLinearChain(t *testing.T) {
	g, src := newVideoGraph(t, gray4x2)

	outputs, err := g.Parse("hflip, vflip", map[string]*Port{"in": src.Output()})
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	hflip := src.Output().Peer().Node()
	assert.Equal(t, "hflip", hflip.Kind())
	assert.Equal(t, "vflip", hflip.Output(0).Peer().Node().Kind())

	out := outputs["out"]
	require.NotNil(t, out)
	assert.Equal(t, "vflip", out.Node().Kind())
	assert.Equal(t, DirectionOutput, out.Direction())
	assert.False(t, out.Connected())
}

// A segment's input labels name ports the caller already owns; its output
// labels name ports the caller receives. Chaining two segments must wire the
// first segment's output into the second, not the reverse.
func TestParseInversionRoundTrip(t *testing.T) {
	g, src := newVideoGraph(t, gray4x2)

	first, err := g.Parse("[in] hflip [mid]", map[string]*Port{"in": src.Output()})
	require.NoError(t, err)
	mid := first["mid"]
	require.NotNil(t, mid)
	assert.Equal(t, "hflip", mid.Node().Kind())
	assert.Equal(t, DirectionOutput, mid.Direction())
	assert.Same(t, src.Output(), mid.Node().Input(0).Peer())

	second, err := g.Parse("[mid] vflip [out]", map[string]*Port{"mid": mid})
	require.NoError(t, err)
	out := second["out"]
	require.NotNil(t, out)
	assert.Equal(t, "vflip", out.Node().Kind())
	assert.Same(t, mid, out.Node().Input(0).Peer())
	assert.Same(t, out.Node().Input(0), mid.Peer())

	sink, err := g.AddBufferSink(out)
	require.NoError(t, err)
	require.NoError(t, g.Configure())

	require.NoError(t, src.PushFrame(grayFrame(t, gray4x2, 0, 0, 1, 2, 3, 4, 5, 6, 7)))
	frames := collect(t, sink)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{7, 6, 5, 4, 3, 2, 1, 0}, frames[0].VideoBytes())
}

func TestParseInternalLabels(t *testing.T) {
	g, src := newVideoGraph(t, gray4x2)

	outputs, err := g.Parse("[in] split [a][b]; [a] hflip [x]; [b] vflip [y]; [x][y] interleave", map[string]*Port{"in": src.Output()})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "interleave", outputs["out"].Node().Kind())

	_, err = g.AddBufferSink(outputs["out"])
	require.NoError(t, err)
	assert.NoError(t, g.Configure())
}

func TestParseNamesInstances(t *testing.T) {
	g, src := newVideoGraph(t, gray4x2)
	_, err := g.Parse("hflip@mirror", map[string]*Port{"in": src.Output()})
	require.NoError(t, err)

	n, ok := g.Node("hflip@mirror")
	require.True(t, ok)
	assert.Equal(t, "hflip", n.Kind())
}

func TestParseIsAtomic(t *testing.T) {
	for name, segment := range map[string]string{
		"unknown filter":   "hflip, no_such_filter",
		"unbound label":    "[in] hflip [a]; [b] vflip",
		"duplicate output": "[in] split [a][a]",
		"bad option":       "hflip, volume=gain=2",
		"too many labels":  "[in][x] hflip",
		"media mismatch":   "hflip, volume",
	} {
		t.Run(name, func(t *testing.T) {
			g, src := newVideoGraph(t, gray4x2)
			before := len(g.Nodes())

			_, err := g.Parse(segment, map[string]*Port{"in": src.Output()})
			require.Error(t, err)
			assert.Len(t, g.Nodes(), before)
			assert.False(t, src.Output().Connected())
		})
	}
}

func TestParseRejectsUnusedInputs(t *testing.T) {
	g, src := newVideoGraph(t, gray4x2)
	split, err := g.AddNode("split", nil, src.Output())
	require.NoError(t, err)

	_, err = g.Parse("hflip", map[string]*Port{"in": split.Output(0), "spare": split.Output(1)})
	assert.ErrorIs(t, err, ErrLink)
	assert.False(t, split.Output(0).Connected())
}

func TestParseRejectsSourcesAndSinks(t *testing.T) {
	g, src := newVideoGraph(t, gray4x2)
	_, err := g.Parse("buffersink", map[string]*Port{"in": src.Output()})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
