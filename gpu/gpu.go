package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
)

// ErrInvalidProvider is returned by SetDeviceProvider for values that are
// not a gpucontext.DeviceProvider.
var ErrInvalidProvider = errors.New("gpu: not a device provider")

var shared struct {
	mu       sync.RWMutex
	provider gpucontext.DeviceProvider
}

// SetDeviceProvider makes Open borrow the device of an application that
// already owns one (e.g. gogpu) instead of creating its own. Passing nil
// restores standalone devices.
//
// The provider must also expose HAL handles; see NewExecutorFromProvider.
// Call this before compiling programs for the GPU backend.
func SetDeviceProvider(provider any) error {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if provider == nil {
		shared.provider = nil
		return nil
	}
	dp, ok := provider.(gpucontext.DeviceProvider)
	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidProvider, provider)
	}
	shared.provider = dp
	return nil
}

// Open returns an executor on the shared device if SetDeviceProvider was
// called, or on a standalone Vulkan device otherwise.
func Open(cfg Config) (*Executor, error) {
	shared.mu.RLock()
	provider := shared.provider
	shared.mu.RUnlock()
	if provider != nil {
		return NewExecutorFromProvider(provider, cfg)
	}
	return NewExecutor(cfg)
}
