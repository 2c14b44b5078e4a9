//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/oscuras"
)

var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrVulkanUnavailable is returned when the Vulkan HAL backend is not
	// compiled in or cannot be loaded.
	ErrVulkanUnavailable = errors.New("native: vulkan backend not available")

	// ErrProvider is returned when a device provider does not expose HAL
	// device and queue objects.
	ErrProvider = errors.New("native: provider does not expose HAL types")

	// ErrUnknownResource is returned when an ID does not name a live
	// resource on this adapter.
	ErrUnknownResource = errors.New("native: unknown resource")

	errEmptyModule = errors.New("native: empty SPIR-V module")
)

// mapError tags HAL errors with the runtime error class they belong to so
// callers can match them with errors.Is.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, oscuras.ErrDeviceLost) || errors.Is(err, oscuras.ErrOutOfMemory) || errors.Is(err, oscuras.ErrTimeout) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device lost"), strings.Contains(msg, "device_lost"):
		return fmt.Errorf("%w: %w", oscuras.ErrDeviceLost, err)
	case strings.Contains(msg, "out of memory"), strings.Contains(msg, "out_of_device_memory"), strings.Contains(msg, "out_of_host_memory"):
		return fmt.Errorf("%w: %w", oscuras.ErrOutOfMemory, err)
	case strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %w", oscuras.ErrTimeout, err)
	}
	return err
}

func isLost(err error) bool {
	return errors.Is(err, oscuras.ErrDeviceLost)
}
