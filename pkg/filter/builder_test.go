package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/media"
)

func videoParams() SourceParams {
	return SourceParams{
		Format:    media.Format{Type: media.MediaTypeVideo, Video: gray4x2},
		FrameRate: media.NewRational(25, 1),
	}
}

func TestBuilderIdentityChain(t *testing.T) {
	chain, err := NewBuilder("").Build(videoParams())
	require.NoError(t, err)
	defer chain.Close()

	assert.Equal(t, media.NewRational(1, 25), chain.Source.Format().TimeBase)
	assert.Len(t, chain.Graph.Nodes(), 2)
	assert.Same(t, chain.Source.Output(), chain.Sink.Input().Peer())
}

func TestBuilderAppendsContent(t *testing.T) {
	b := NewBuilder("hflip", WithThreads(2))
	b.AddToContent("  ")
	b.AddToContent("vflip")
	assert.Equal(t, "hflip,vflip", b.Content())

	chain, err := b.Build(videoParams())
	require.NoError(t, err)
	defer chain.Close()
	assert.Equal(t, 2, chain.Graph.Threads())

	require.NoError(t, chain.Source.PushFrame(grayFrame(t, gray4x2, 0, 0, 1, 2, 3, 4, 5, 6, 7)))
	frames := collect(t, chain.Sink)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{7, 6, 5, 4, 3, 2, 1, 0}, frames[0].VideoBytes())
}

func TestBuilderRotatesFirst(t *testing.T) {
	b := NewBuilder("hflip")
	b.SetDisplayMatrix([9]int32{0, -one, 0, one, 0, 0, 0, 0, 1 << 30})

	chain, err := b.Build(videoParams())
	require.NoError(t, err)
	defer chain.Close()

	assert.Equal(t, "hflip", chain.Sink.Input().Peer().Node().Kind())
	assert.Equal(t, 2, chain.Sink.Format().Video.Width)
	assert.Equal(t, 4, chain.Sink.Format().Video.Height)
}

func TestBuilderRejectsBranchingChains(t *testing.T) {
	_, err := NewBuilder("split[a][b]").Build(videoParams())
	assert.ErrorIs(t, err, ErrLink)

	_, err = NewBuilder("volume").Build(videoParams())
	assert.Error(t, err)
}

func TestWithThreadsRejectsNegative(t *testing.T) {
	_, err := NewGraph(WithThreads(-1))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
