//go:build cgo_enabled

package hwcontext

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// OpenNativeDevice opens an FFmpeg hardware device ("cuda", "vaapi",
// "videotoolbox", ...). The returned owner handle frees the device context
// once every borrower has released it.
func OpenNativeDevice(typeName, device string) (*Device, error) {
	t := astiav.FindHardwareDeviceTypeByName(typeName)
	if t == astiav.HardwareDeviceTypeNone {
		return nil, fmt.Errorf("%s: %w", typeName, ErrUnknownDevice)
	}

	hdc, err := astiav.CreateHardwareDeviceContext(t, device, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("creating %s device context: %w", typeName, err)
	}

	return OpenDevice(typeName, device, hdc, func() error {
		hdc.Free()
		return nil
	}), nil
}
