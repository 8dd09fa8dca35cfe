package hwcontext

type device struct {
	typ    string
	name   string
	native any
}

// Device is an opaque hardware device handle.
type Device struct {
	h *handle[*device]
}

// OpenDevice wraps an opened device and returns its owner handle. closer runs
// once, when the last reference is released.
func OpenDevice(typ, name string, native any, closer func() error) *Device {
	var teardown func(*device) error
	if closer != nil {
		teardown = func(*device) error { return closer() }
	}
	return &Device{h: newHandle(&device{typ: typ, name: name, native: native}, teardown)}
}

// Borrow returns a non-owning handle to the same device.
func (d *Device) Borrow() (*Device, error) {
	h, err := d.h.borrow()
	if err != nil {
		return nil, err
	}
	return &Device{h: h}, nil
}

// Release drops this handle's reference.
func (d *Device) Release() error {
	return d.h.release()
}

func (d *Device) Owner() bool {
	return d.h.owner
}

// Alive reports whether the underlying device is still open.
func (d *Device) Alive() bool {
	return !d.h.s.gone.Load()
}

// Refs returns the number of live references to the device.
func (d *Device) Refs() int {
	return d.h.refs()
}

func (d *Device) Type() string {
	return d.h.s.value.typ
}

func (d *Device) Name() string {
	return d.h.s.value.name
}

// Native returns the backend object, e.g. an FFmpeg device context.
func (d *Device) Native() (any, error) {
	v, err := d.h.get()
	if err != nil {
		return nil, err
	}
	return v.native, nil
}
