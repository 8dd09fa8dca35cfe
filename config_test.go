package avpipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

const sampleConfig = `{
	"name": "voice",
	"input": {
		"path": "in.raw",
		"type": "audio",
		"sample_format": "s16",
		"sample_rate": 8000,
		"channel_layout": "mono",
		"packet_samples": 4
	},
	"output": {"path": "out.raw"},
	"streams": {
		"0": {
			"encoder": "pcm_s16le",
			"frame_size": 5,
			"bitrate_control": {"max_bitrate": 256000, "min_bitrate": 64000, "min_bitrate_change_percentage": 10}
		}
	}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "voice", config.Name)
	assert.Equal(t, 4, config.Input.PacketSamples)
	require.Contains(t, config.Streams, "0")
	stream := config.Streams["0"]
	assert.Equal(t, 5, stream.FrameSize)
	require.NotNil(t, stream.BitrateControl)
	assert.Equal(t, int64(64000), stream.BitrateControl.MinBitrate)

	_, err = LoadConfig(writeConfig(t, "{"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigDrivesPipeline(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	options, err := config.ToOptions()
	require.NoError(t, err)
	assert.Len(t, options, 2)

	input := pcmBytes(ramp(12)...)
	out := newOutput(t)
	p := newPipeline(t, pcmDemuxer(t, input), out.muxer, options...)
	assert.Equal(t, "voice", p.Name())

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, input, out.Bytes())
	assert.NoError(t, p.AdaptBitrate(0, 100000))
}

func TestToOptionsRejects(t *testing.T) {
	config := &Config{Streams: map[string]StreamConfig{"audio": {}}}
	_, err := config.ToOptions()
	assert.ErrorIs(t, err, ErrUnknownStream)

	config = &Config{Streams: map[string]StreamConfig{"0": {BitrateControl: &transcode.UpdateEncoderConfig{}}}}
	_, err = config.ToOptions()
	assert.ErrorIs(t, err, transcode.ErrConfiguration)
}

func TestInputStreamInfo(t *testing.T) {
	audio := InputConfig{Type: "audio", SampleFormat: "s16", SampleRate: 48000, ChannelLayout: "stereo"}
	info, err := audio.StreamInfo()
	require.NoError(t, err)
	assert.Equal(t, media.MediaTypeAudio, info.Format.Type)
	assert.Equal(t, 2, info.Format.Audio.Channels())
	assert.Equal(t, media.NewRational(1, 48000), info.TimeBase())

	video := InputConfig{Type: "video", Width: 4, Height: 2, PixelFormat: "gray", FrameRate: "30/1", DisplayRotation: 90}
	info, err = video.StreamInfo()
	require.NoError(t, err)
	assert.Equal(t, media.NewRational(1, 30), info.TimeBase())
	require.NotNil(t, info.DisplayMatrix)
	assert.Equal(t, [9]int32{0, -1 << 16, 0, 1 << 16, 0, 0, 0, 0, 1 << 30}, *info.DisplayMatrix)

	video.DisplayRotation = 45
	_, err = video.StreamInfo()
	assert.ErrorIs(t, err, media.ErrRange)

	_, err = InputConfig{Type: "subtitle"}.StreamInfo()
	assert.ErrorIs(t, err, media.ErrInvalidFormat)
}
