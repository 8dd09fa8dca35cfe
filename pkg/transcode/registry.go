package transcode

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harshabose/avpipe/pkg/media"
)

type Capability uint

const (
	// CapabilityVariableFrameSize marks encoders accepting audio frames of
	// any size.
	CapabilityVariableFrameSize Capability = 1 << iota
	CapabilityHardware
)

// Descriptor is what a codec declares about itself.
type Descriptor struct {
	Name          string
	MediaType     media.MediaType
	SampleFormats []media.SampleFormat
	PixelFormats  []media.PixelFormat
	// RequiresFormat is set for codecs whose bitstream carries no format, so
	// decoders need one configured.
	RequiresFormat bool
	Capabilities   Capability
}

func (d Descriptor) Has(c Capability) bool {
	return d.Capabilities&c != 0
}

type codec struct {
	desc       Descriptor
	newDecoder func() DecoderEngine
	newEncoder func() EncoderEngine

	// fallback codecs yield to an FFmpeg codec of the same name.
	fallback bool
}

func (c codec) has(encoding bool) bool {
	if encoding {
		return c.newEncoder != nil
	}
	return c.newDecoder != nil
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]codec)

	// lookupNative resolves codecs not registered by name. It is set when the
	// FFmpeg engines are compiled in.
	lookupNative func(name string) (codec, bool)
)

// Register adds a codec. Either constructor may be nil when the codec only
// decodes or only encodes.
func Register(desc Descriptor, newDecoder func() DecoderEngine, newEncoder func() EncoderEngine) error {
	if desc.Name == "" || (newDecoder == nil && newEncoder == nil) {
		return fmt.Errorf("registering codec %q without name or engines: %w", desc.Name, ErrConfiguration)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[desc.Name]; exists {
		return fmt.Errorf("codec %q already registered: %w", desc.Name, ErrConfiguration)
	}
	registry[desc.Name] = codec{desc: desc, newDecoder: newDecoder, newEncoder: newEncoder}
	return nil
}

func mustRegister(desc Descriptor, newDecoder func() DecoderEngine, newEncoder func() EncoderEngine) {
	if err := Register(desc, newDecoder, newEncoder); err != nil {
		panic(err)
	}
}

// mustRegisterFallback registers a codec used only when FFmpeg does not
// provide one of the same name for the requested direction.
func mustRegisterFallback(desc Descriptor, newDecoder func() DecoderEngine, newEncoder func() EncoderEngine) {
	mustRegister(desc, newDecoder, newEncoder)

	registryMu.Lock()
	c := registry[desc.Name]
	c.fallback = true
	registry[desc.Name] = c
	registryMu.Unlock()
}

// lookup resolves the codec serving name in one direction. Registered codecs
// win over FFmpeg unless they are fallbacks or lack the direction.
func lookup(name string, encoding bool) (codec, bool) {
	registryMu.RLock()
	registered, ok := registry[name]
	registryMu.RUnlock()

	if ok && !registered.fallback && registered.has(encoding) {
		return registered, true
	}
	if lookupNative != nil {
		if native, found := lookupNative(name); found && native.has(encoding) {
			return native, true
		}
	}
	if ok && registered.has(encoding) {
		return registered, true
	}
	return codec{}, false
}

func FindDecoder(name string) (Descriptor, bool) {
	c, ok := lookup(name, false)
	if !ok {
		return Descriptor{}, false
	}
	return c.desc, true
}

func FindEncoder(name string) (Descriptor, bool) {
	c, ok := lookup(name, true)
	if !ok {
		return Descriptor{}, false
	}
	return c.desc, true
}

// Codecs lists the registered codecs by name. FFmpeg codecs resolved on
// demand are not listed.
func Codecs() []Descriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Descriptor, 0, len(registry))
	for _, c := range registry {
		out = append(out, c.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
