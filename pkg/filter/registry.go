package filter

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/harshabose/avpipe/pkg/media"
)

type role int

const (
	roleFilter role = iota
	roleSource
	roleSink
)

// Processor is the behaviour behind a node. It is created with the node's
// options and must know its port counts from then on.
type Processor interface {
	NumInputs() int
	NumOutputs() int
	// Negotiate is called once, in topological order, with the formats
	// arriving on each input. It returns the format of each output.
	Negotiate(inputs []media.Format) ([]media.Format, error)
	// Process handles one frame arriving on input in, or end of stream on
	// that input when frame is nil. The processor owns frame from then on.
	// Results go out through emit; a nil frame signals end of stream on that
	// output.
	Process(in int, frame *media.Frame, emit func(out int, frame *media.Frame)) error
}

// Definition describes a filter kind.
type Definition struct {
	Name string
	// MediaType restricts the media the filter handles. Unknown means any.
	MediaType media.MediaType
	// Options lists option names in the order positional values bind to.
	Options []string
	// OpenOptions accepts any key. Positional values are then stored under
	// "#0", "#1" and so on.
	OpenOptions bool
	New         func(options Options) (Processor, error)

	role role
}

// Options are resolved key/value arguments of a node.
type Options map[string]string

func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s=%q: %w", key, v, ErrInvalidArgument)
	}
	return n, nil
}

func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("option %s=%q: %w", key, v, ErrInvalidArgument)
	}
	return f, nil
}

// Arg is one argument as written: Key is empty for positional values.
type Arg struct {
	Key   string
	Value string
}

type Args []Arg

// KV builds named arguments from alternating keys and values.
func KV(pairs ...string) Args {
	args := make(Args, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		args = append(args, Arg{Key: pairs[i], Value: pairs[i+1]})
	}
	return args
}

// resolve binds positional values to option names and rejects unknown keys.
func (d Definition) resolve(args Args) (Options, error) {
	options := make(Options, len(args))
	position := 0
	for _, a := range args {
		key := a.Key
		if key == "" && d.OpenOptions {
			key = fmt.Sprintf("#%d", position)
			position++
		} else if key == "" {
			if position >= len(d.Options) {
				return nil, fmt.Errorf("%s: too many positional values: %w", d.Name, ErrInvalidArgument)
			}
			key = d.Options[position]
			position++
		} else if !d.OpenOptions && !d.accepts(key) {
			return nil, fmt.Errorf("%s: unknown option %q: %w", d.Name, key, ErrInvalidArgument)
		}
		options[key] = a.Value
	}
	return options, nil
}

func (d Definition) accepts(key string) bool {
	for _, o := range d.Options {
		if o == key {
			return true
		}
	}
	return false
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Definition)

	// lookupNative resolves kinds not registered here. It is set when the
	// FFmpeg filters are compiled in.
	lookupNative func(name string) (Definition, bool)
)

// Register adds a filter kind.
func Register(d Definition) error {
	if d.Name == "" || d.New == nil {
		return fmt.Errorf("registering filter %q without constructor: %w", d.Name, ErrInvalidArgument)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[d.Name]; exists {
		return fmt.Errorf("filter %q already registered: %w", d.Name, ErrInvalidArgument)
	}
	registry[d.Name] = d
	return nil
}

func mustRegister(d Definition) {
	if err := Register(d); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Definition, bool) {
	registryMu.RLock()
	d, ok := registry[name]
	registryMu.RUnlock()
	if ok {
		return d, true
	}
	if lookupNative != nil {
		return lookupNative(name)
	}
	return Definition{}, false
}

// Filters lists the registered kinds by name.
func Filters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
