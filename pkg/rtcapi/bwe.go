package rtcapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/mediasource"
)

var ErrSubscriberExists = errors.New("rtcapi: subscriber already exists")

// UpdateBitrateCallBack receives a subscriber's share of the estimate. An
// error unsubscribes it.
type UpdateBitrateCallBack = func(bps int64) error

// Estimator is the part of a congestion controller the controller polls.
// cc.BandwidthEstimator satisfies it.
type Estimator interface {
	GetTargetBitrate() int
}

type subscriber struct {
	id       string
	priority mediasource.Priority
	callback UpdateBitrateCallBack
}

// BWEController splits the estimated bandwidth between subscribers in
// proportion to their priority.
type BWEController struct {
	estimator Estimator
	interval  time.Duration
	subs      map[string]*subscriber
	once      sync.Once
	mux       sync.RWMutex
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewBWEController(ctx context.Context, estimator Estimator, interval time.Duration) (*BWEController, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("bwe interval %s must be positive", interval)
	}
	ctx2, cancel2 := context.WithCancel(ctx)

	return &BWEController{
		estimator: estimator,
		interval:  interval,
		subs:      make(map[string]*subscriber),
		ctx:       ctx2,
		cancel:    cancel2,
	}, nil
}

func (bwc *BWEController) SetEstimator(estimator Estimator) {
	bwc.mux.Lock()
	defer bwc.mux.Unlock()

	bwc.estimator = estimator
}

func (bwc *BWEController) Start() {
	bwc.wg.Add(1)
	go bwc.loop()
}

func (bwc *BWEController) Subscribe(id string, priority mediasource.Priority, callback UpdateBitrateCallBack) error {
	bwc.mux.Lock()
	defer bwc.mux.Unlock()

	if _, exists := bwc.subs[id]; exists {
		return fmt.Errorf("%s: %w", id, ErrSubscriberExists)
	}
	bwc.subs[id] = &subscriber{id: id, priority: priority, callback: callback}
	return nil
}

func (bwc *BWEController) Unsubscribe(id string) {
	bwc.mux.Lock()
	defer bwc.mux.Unlock()

	delete(bwc.subs, id)
}

func (bwc *BWEController) Subscribers() int {
	bwc.mux.RLock()
	defer bwc.mux.RUnlock()

	return len(bwc.subs)
}

func (bwc *BWEController) loop() {
	defer bwc.wg.Done()

	ticker := time.NewTicker(bwc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-bwc.ctx.Done():
			return
		case <-ticker.C:
			bwc.distribute()
		}
	}
}

// distribute sends every subscriber its share of the current estimate.
func (bwc *BWEController) distribute() {
	bwc.mux.RLock()
	estimator := bwc.estimator
	subs := make([]*subscriber, 0, len(bwc.subs))
	total := mediasource.Level0
	for _, sub := range bwc.subs {
		subs = append(subs, sub)
		total += sub.priority
	}
	bwc.mux.RUnlock()

	if estimator == nil || total == mediasource.Level0 {
		return
	}

	bitrate := estimator.GetTargetBitrate()
	for _, sub := range subs {
		if sub.priority == mediasource.Level0 {
			continue
		}
		share := int64(float64(bitrate) * float64(sub.priority) / float64(total))

		bwc.pending.Add(1)
		go bwc.sendBitrateUpdate(sub, share)
	}
}

func (bwc *BWEController) sendBitrateUpdate(sub *subscriber, bitrate int64) {
	defer bwc.pending.Done()

	done := make(chan error, 1)
	go func() {
		done <- sub.callback(bitrate)
	}()

	select {
	case err := <-done:
		if err != nil {
			logging.WithComponent("rtcapi").WithFields(logrus.Fields{
				"subscriber": sub.id,
				"bitrate":    bitrate,
			}).WithError(err).Warn("bitrate update failed, unsubscribing")
			bwc.Unsubscribe(sub.id)
		}
	case <-bwc.ctx.Done():
	}
}

func (bwc *BWEController) Close() {
	bwc.once.Do(func() {
		bwc.cancel()
		bwc.wg.Wait()
		bwc.pending.Wait()

		bwc.mux.Lock()
		defer bwc.mux.Unlock()
		bwc.subs = make(map[string]*subscriber)
	})
}
