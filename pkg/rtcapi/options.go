package rtcapi

import (
	"fmt"
	"time"

	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/gcc"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/interceptor/pkg/report"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/interceptor/pkg/twcc"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

type Option = func(*API) error

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: webrtc.TypeRTCPFBGoogREMB},
	{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
	{Type: webrtc.TypeRTCPFBNACK},
	{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
}

func registerWithRTX(a *API, capability webrtc.RTPCodecCapability, pt, rtx webrtc.PayloadType) error {
	if err := a.mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: capability,
		PayloadType:        pt,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return err
	}

	return a.mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeRTX,
			ClockRate:   capability.ClockRate,
			SDPFmtpLine: fmt.Sprintf("apt=%d", pt),
		},
		PayloadType: rtx,
	}, webrtc.RTPCodecTypeVideo)
}

func WithH264MediaEngine(clockrate uint32) Option {
	return func(a *API) error {
		return registerWithRTX(a, webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeH264,
			ClockRate:    clockrate,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: videoFeedback,
		}, H264PayloadType, H264RTXPayloadType)
	}
}

func WithVP8MediaEngine(clockrate uint32) Option {
	return func(a *API) error {
		return registerWithRTX(a, webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeVP8,
			ClockRate:    clockrate,
			RTCPFeedback: videoFeedback,
		}, VP8PayloadType, VP8RTXPayloadType)
	}
}

func WithOpusMediaEngine(samplerate uint32, channelLayout uint16) Option {
	return func(a *API) error {
		return a.mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   samplerate,
				Channels:    channelLayout,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			PayloadType: OpusPayloadType,
		}, webrtc.RTPCodecTypeAudio)
	}
}

func WithDefaultMediaEngine() Option {
	return func(a *API) error {
		return a.mediaEngine.RegisterDefaultCodecs()
	}
}

func WithDefaultInterceptorRegistry() Option {
	return func(a *API) error {
		return webrtc.RegisterDefaultInterceptors(a.mediaEngine, a.interceptorRegistry)
	}
}

func WithNACKInterceptor(generatorOptions NACKGeneratorOptions, responderOptions NACKResponderOptions) Option {
	return func(a *API) error {
		generator, err := nack.NewGeneratorInterceptor(generatorOptions...)
		if err != nil {
			return err
		}
		responder, err := nack.NewResponderInterceptor(responderOptions...)
		if err != nil {
			return err
		}

		a.mediaEngine.RegisterFeedback(webrtc.RTCPFeedback{Type: webrtc.TypeRTCPFBNACK}, webrtc.RTPCodecTypeVideo)
		a.mediaEngine.RegisterFeedback(webrtc.RTCPFeedback{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"}, webrtc.RTPCodecTypeVideo)
		a.interceptorRegistry.Add(responder)
		a.interceptorRegistry.Add(generator)
		return nil
	}
}

// WithTWCCSenderInterceptor advertises the transport-cc header extension on
// audio and video and sends feedback at interval.
func WithTWCCSenderInterceptor(interval TWCCSenderInterval) Option {
	return func(a *API) error {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
			a.mediaEngine.RegisterFeedback(webrtc.RTCPFeedback{Type: webrtc.TypeRTCPFBTransportCC}, kind)
			if err := a.mediaEngine.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: sdp.TransportCCURI}, kind); err != nil {
				return err
			}
		}

		generator, err := twcc.NewSenderInterceptor(twcc.SendInterval(time.Duration(interval)))
		if err != nil {
			return err
		}
		a.interceptorRegistry.Add(generator)
		return nil
	}
}

func WithRTCPReportsInterceptor(interval RTCPReportInterval) Option {
	return func(a *API) error {
		receiver, err := report.NewReceiverInterceptor(report.ReceiverInterval(time.Duration(interval)))
		if err != nil {
			return err
		}
		sender, err := report.NewSenderInterceptor(report.SenderInterval(time.Duration(interval)))
		if err != nil {
			return err
		}

		a.interceptorRegistry.Add(receiver)
		a.interceptorRegistry.Add(sender)
		return nil
	}
}

func WithSimulcastExtensionHeaders() Option {
	return func(a *API) error {
		return webrtc.ConfigureSimulcastExtensionHeaders(a.mediaEngine)
	}
}

// WithBandwidthControlInterceptor runs Google congestion control on every
// peer connection; NewPeerConnectionWithEstimator hands out its estimator.
func WithBandwidthControlInterceptor(initialBitrate, minimumBitrate, maximumBitrate int64) Option {
	return func(a *API) error {
		controller, err := cc.NewInterceptor(func() (cc.BandwidthEstimator, error) {
			return gcc.NewSendSideBWE(
				gcc.SendSideBWEInitialBitrate(int(initialBitrate)),
				gcc.SendSideBWEMinBitrate(int(minimumBitrate)),
				gcc.SendSideBWEMaxBitrate(int(maximumBitrate)),
			)
		})
		if err != nil {
			return err
		}

		controller.OnNewPeerConnection(func(_ string, estimator cc.BandwidthEstimator) {
			a.estimatorChan <- estimator
		})

		a.interceptorRegistry.Add(controller)
		a.bandwidth = true
		return nil
	}
}

func WithTWCCHeaderExtensionSender() Option {
	return func(a *API) error {
		return webrtc.ConfigureTWCCHeaderExtensionSender(a.mediaEngine, a.interceptorRegistry)
	}
}

// WithStatsCollector records RTP and RTCP statistics per stream;
// NewPeerConnectionWithStats hands out the getter.
func WithStatsCollector() Option {
	return func(a *API) error {
		collector, err := stats.NewInterceptor()
		if err != nil {
			return err
		}

		collector.OnNewPeerConnection(func(_ string, getter stats.Getter) {
			a.getterChan <- getter
		})

		a.interceptorRegistry.Add(collector)
		a.collector = true
		return nil
	}
}
