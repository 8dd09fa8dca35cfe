package rtcapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/mediasource"
)

type fixedEstimator int

func (e fixedEstimator) GetTargetBitrate() int {
	return int(e)
}

type recorder struct {
	mux  sync.Mutex
	got  map[string]int64
	fail map[string]bool
}

func newRecorder() *recorder {
	return &recorder{got: make(map[string]int64), fail: make(map[string]bool)}
}

func (r *recorder) callback(id string) UpdateBitrateCallBack {
	return func(bps int64) error {
		r.mux.Lock()
		defer r.mux.Unlock()
		r.got[id] = bps
		if r.fail[id] {
			return errors.New("encoder gone")
		}
		return nil
	}
}

func TestBWEControllerSplitsByPriority(t *testing.T) {
	bwc, err := NewBWEController(context.Background(), fixedEstimator(900_000), time.Second)
	require.NoError(t, err)
	defer bwc.Close()

	r := newRecorder()
	require.NoError(t, bwc.Subscribe("video", mediasource.Level2, r.callback("video")))
	require.NoError(t, bwc.Subscribe("audio", mediasource.Level1, r.callback("audio")))
	require.NoError(t, bwc.Subscribe("idle", mediasource.Level0, r.callback("idle")))
	assert.ErrorIs(t, bwc.Subscribe("video", mediasource.Level1, r.callback("video")), ErrSubscriberExists)

	bwc.distribute()
	bwc.pending.Wait()

	assert.Equal(t, map[string]int64{"video": 600_000, "audio": 300_000}, r.got)
}

func TestBWEControllerDropsFailingSubscriber(t *testing.T) {
	bwc, err := NewBWEController(context.Background(), fixedEstimator(100_000), time.Second)
	require.NoError(t, err)
	defer bwc.Close()

	r := newRecorder()
	r.fail["video"] = true
	require.NoError(t, bwc.Subscribe("video", mediasource.Level1, r.callback("video")))
	require.NoError(t, bwc.Subscribe("audio", mediasource.Level1, r.callback("audio")))

	bwc.distribute()
	bwc.pending.Wait()
	assert.Equal(t, 1, bwc.Subscribers())
}

func TestBWEControllerWithoutEstimator(t *testing.T) {
	bwc, err := NewBWEController(context.Background(), nil, 10*time.Millisecond)
	require.NoError(t, err)

	r := newRecorder()
	require.NoError(t, bwc.Subscribe("video", mediasource.Level1, r.callback("video")))
	bwc.Start()
	time.Sleep(30 * time.Millisecond)
	bwc.Close()

	assert.Empty(t, r.got)
	assert.Equal(t, 0, bwc.Subscribers())

	_, err = NewBWEController(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestConfigToOptions(t *testing.T) {
	config := DefaultConfig()
	options, err := config.ToOptions()
	require.NoError(t, err)
	assert.Len(t, options, 6)

	api, err := NewAPI(options...)
	require.NoError(t, err)

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	require.NoError(t, pc.Close())

	_, _, err = api.NewPeerConnectionWithEstimator(context.Background(), webrtc.Configuration{})
	assert.ErrorIs(t, err, ErrNoEstimator)

	bad := Preset("extreme")
	config.NACK = &bad
	_, err = config.ToOptions()
	assert.Error(t, err)
}

func TestICEConfigurationsFromEnvironment(t *testing.T) {
	for _, env := range []string{EnvSTUNURL, EnvTURNUDPURL, EnvTURNTCPURL, EnvTURNTLSURL} {
		t.Setenv(env, "")
	}
	assert.Empty(t, FullConfiguration().ICEServers)

	t.Setenv(EnvSTUNURL, "stun:stun.example.org:3478")
	t.Setenv(EnvTURNUDPURL, "turn:turn.example.org:3478?transport=udp")
	t.Setenv(EnvTURNUsername, "user")
	t.Setenv(EnvTURNPassword, "secret")

	stun := STUNOnlyConfiguration()
	require.Len(t, stun.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, stun.ICEServers[0].URLs)

	full := FullConfiguration()
	require.Len(t, full.ICEServers, 2)
	assert.Equal(t, "user", full.ICEServers[1].Username)
	assert.Equal(t, "secret", full.ICEServers[1].Credential)
}

func TestStatsCollector(t *testing.T) {
	config := DefaultConfig()
	config.Stats = true
	options, err := config.ToOptions()
	require.NoError(t, err)
	assert.Len(t, options, 7)

	api, err := NewAPI(options...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pc, getter, err := api.NewPeerConnectionWithStats(ctx, webrtc.Configuration{})
	require.NoError(t, err)
	require.NotNil(t, getter)
	require.NoError(t, pc.Close())

	plain, err := NewAPI(WithDefaultMediaEngine())
	require.NoError(t, err)
	_, _, err = plain.NewPeerConnectionWithStats(ctx, webrtc.Configuration{})
	assert.ErrorIs(t, err, ErrNoStatsCollector)
}
