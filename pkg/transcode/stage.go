package transcode

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

// Stage drives one codec engine through the open, send, receive, flush and
// close protocol. It is not safe for concurrent use.
type Stage[I, O Unit] struct {
	desc      Descriptor
	encoding  bool
	newEngine func() Engine[I, O]
	engine    Engine[I, O]

	config Config
	device *hwcontext.Device
	state  State
	sent   bool
}

type (
	Decoder = Stage[*media.Packet, *media.Frame]
	Encoder = Stage[*media.Frame, *media.Packet]
)

// NewDecoder creates a closed decoder for the named codec.
func NewDecoder(name string, options ...ConfigOption) (*Decoder, error) {
	c, ok := lookup(name, false)
	if !ok {
		return nil, fmt.Errorf("decoder %q: %w", name, ErrUnknownCodec)
	}
	return newStage(c.desc, false, c.newDecoder, options...)
}

// NewEncoder creates a closed encoder for the named codec.
func NewEncoder(name string, options ...ConfigOption) (*Encoder, error) {
	c, ok := lookup(name, true)
	if !ok {
		return nil, fmt.Errorf("encoder %q: %w", name, ErrUnknownCodec)
	}
	return newStage(c.desc, true, c.newEncoder, options...)
}

func newStage[I, O Unit](desc Descriptor, encoding bool, newEngine func() Engine[I, O], options ...ConfigOption) (*Stage[I, O], error) {
	s := &Stage[I, O]{
		desc:      desc,
		encoding:  encoding,
		newEngine: newEngine,
		config:    Config{MediaType: desc.MediaType},
	}
	if err := s.Configure(options...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stage[I, O]) log() *logrus.Entry {
	kind := "decoder"
	if s.encoding {
		kind = "encoder"
	}
	return logging.WithComponent(kind).WithFields(logrus.Fields{
		"codec": s.desc.Name,
		"state": s.state.String(),
	})
}

func (s *Stage[I, O]) Descriptor() Descriptor {
	return s.desc
}

func (s *Stage[I, O]) State() State {
	return s.state
}

// Config returns a copy of the current configuration.
func (s *Stage[I, O]) Config() Config {
	return s.config.clone()
}

// Configure applies options to the configuration. It fails once the stage
// has been opened.
func (s *Stage[I, O]) Configure(options ...ConfigOption) error {
	if s.state != StateClosed {
		return fmt.Errorf("configuring %s in state %s: %w", s.desc.Name, s.state, ErrInvalidOperation)
	}

	config := s.config.clone()
	for _, option := range options {
		if err := option(&config); err != nil {
			return err
		}
	}
	s.config = config
	return nil
}

// SetHardwareDevice makes the stage borrow dev. The caller keeps its own
// reference and may release it at any time.
func (s *Stage[I, O]) SetHardwareDevice(dev *hwcontext.Device) error {
	if s.state != StateClosed {
		return fmt.Errorf("hardware device on %s in state %s: %w", s.desc.Name, s.state, ErrInvalidOperation)
	}

	var borrowed *hwcontext.Device
	if dev != nil {
		var err error
		if borrowed, err = dev.Borrow(); err != nil {
			return err
		}
	}
	if s.device != nil {
		_ = s.device.Release()
	}
	s.device = borrowed
	return nil
}

// Open validates the configuration and opens the engine. Opening an open
// stage does nothing.
func (s *Stage[I, O]) Open() error {
	switch s.state {
	case StateReleased:
		return fmt.Errorf("opening released %s: %w", s.desc.Name, ErrInvalidOperation)
	case StateClosed:
	default:
		return nil
	}

	config := s.config.clone()
	if err := config.validate(s.desc, s.encoding); err != nil {
		return err
	}

	engine := s.newEngine()
	if err := engine.Open(config, s.device); err != nil {
		return fmt.Errorf("opening %s: %w", s.desc.Name, err)
	}

	s.engine = engine
	s.config = config
	s.state = StateOpen
	s.log().WithField("config", describe(config)).Debug("stage opened")
	return nil
}

// SendInput hands one unit to the engine. A nil or empty unit signals end of
// stream. On StatusBusy the unit was not consumed and must be sent again
// after outputs were received. The stage does not keep in; the caller may
// reuse it once SendInput returns.
func (s *Stage[I, O]) SendInput(in I) (Status, error) {
	switch s.state {
	case StateOpen:
	case StateEndSignaled, StateDrained:
		return StatusEnded, fmt.Errorf("%s: input after end of stream: %w", s.desc.Name, ErrInvalidOperation)
	default:
		return StatusError, fmt.Errorf("%s: input in state %s: %w", s.desc.Name, s.state, ErrInvalidOperation)
	}

	eos := isEndOfStream(in)
	if eos {
		var none I
		in = none
	}

	if err := s.engine.Send(in); err != nil {
		if errors.Is(err, ErrAgain) {
			return StatusBusy, nil
		}
		return StatusError, fmt.Errorf("%s: send: %w", s.desc.Name, err)
	}

	s.sent = true
	if eos {
		s.state = StateEndSignaled
		s.log().Debug("end of stream signaled")
	}
	return StatusAccepted, nil
}

// ReceiveOutput fills out with the next output. Whatever out held before is
// released first, whatever the outcome.
func (s *Stage[I, O]) ReceiveOutput(out O) (Status, error) {
	switch s.state {
	case StateOpen, StateEndSignaled:
	case StateDrained:
		reset(out)
		return StatusEnded, nil
	default:
		return StatusError, fmt.Errorf("%s: output in state %s: %w", s.desc.Name, s.state, ErrInvalidOperation)
	}
	if !s.sent {
		return StatusError, fmt.Errorf("%s: output before any input: %w", s.desc.Name, ErrInvalidOperation)
	}

	reset(out)
	err := s.engine.Receive(out)
	switch {
	case err == nil:
		return StatusProduced, nil
	case errors.Is(err, ErrAgain):
		return StatusNeedsMoreInput, nil
	case errors.Is(err, ErrEOF):
		s.state = StateDrained
		s.log().Debug("stage drained")
		return StatusEnded, nil
	default:
		return StatusError, fmt.Errorf("%s: receive: %w", s.desc.Name, err)
	}
}

// Flush drops everything buffered in the engine and makes the stage accept
// input again, also after end of stream.
func (s *Stage[I, O]) Flush() error {
	switch s.state {
	case StateOpen, StateEndSignaled, StateDrained:
	default:
		return fmt.Errorf("flushing %s in state %s: %w", s.desc.Name, s.state, ErrInvalidOperation)
	}

	s.engine.Flush()
	s.state = StateOpen
	return nil
}

// Close releases the engine and the borrowed hardware device. A closed stage
// cannot be reopened.
func (s *Stage[I, O]) Close() error {
	if s.state == StateReleased {
		return nil
	}

	var errs []error
	if s.engine != nil {
		errs = append(errs, s.engine.Close())
		s.engine = nil
	}
	if s.device != nil {
		errs = append(errs, s.device.Release())
		s.device = nil
	}
	s.state = StateReleased
	return errors.Join(errs...)
}

// FrameSize returns the number of samples per channel an open audio encoder
// wants per frame, or zero when any size goes.
func (s *Stage[I, O]) FrameSize() int {
	if s.engine == nil {
		return 0
	}
	if f, ok := any(s.engine).(CanDescribeFrameSize); ok {
		return f.FrameSize()
	}
	return 0
}

func (s *Stage[I, O]) GetParameterSets() (sps, pps []byte, err error) {
	p, ok := any(s.engine).(CanGetParameterSets)
	if !ok {
		return nil, nil, fmt.Errorf("%s has no parameter sets: %w", s.desc.Name, ErrInvalidOperation)
	}
	return p.GetParameterSets()
}

func describe(c Config) string {
	switch c.MediaType {
	case media.MediaTypeAudio:
		return c.AudioFormat().String()
	case media.MediaTypeVideo:
		return c.VideoFormat().String()
	default:
		return c.MediaType.String()
	}
}

// Drain signals end of stream and hands every remaining output to yield,
// reusing out. It returns once the stage reports StatusEnded.
func Drain[I, O Unit](s *Stage[I, O], out O, yield func(O) error) error {
	if s.State() == StateOpen {
		for {
			var eos I
			status, err := s.SendInput(eos)
			if status == StatusAccepted {
				break
			}
			if status != StatusBusy {
				return err
			}

			status, err = s.ReceiveOutput(out)
			switch status {
			case StatusProduced:
				if err := yield(out); err != nil {
					return err
				}
			case StatusEnded:
				return nil
			case StatusNeedsMoreInput:
				return fmt.Errorf("%s busy without pending output: %w", s.desc.Name, ErrInvalidOperation)
			default:
				return err
			}
		}
	}

	for {
		status, err := s.ReceiveOutput(out)
		switch status {
		case StatusProduced:
			if err := yield(out); err != nil {
				return err
			}
		case StatusEnded:
			return nil
		case StatusNeedsMoreInput:
			return fmt.Errorf("%s wants input after end of stream: %w", s.desc.Name, ErrInvalidOperation)
		default:
			return err
		}
	}
}
