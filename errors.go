package oscuras

import (
	"errors"
	"fmt"
)

// ErrConstruction is the class of errors raised while building a camera,
// scene, buffer or engine. They are programming or input errors and are
// never retried.
var ErrConstruction = errors.New("oscuras: construction error")

// Construction errors. Each one matches ErrConstruction with errors.Is.
var (
	// ErrInvalidResolution is returned when a width or height is not positive.
	ErrInvalidResolution = constructionError("invalid resolution")

	// ErrSingularTransform is returned when a primitive transform has no inverse.
	ErrSingularTransform = constructionError("singular transform")

	// ErrUnsupportedBindingUsage is returned when a buffer has neither
	// uniform nor storage usage and is asked for a binding description.
	ErrUnsupportedBindingUsage = constructionError("unsupported usage for binding")

	// ErrShaderNotFound is returned when a shader loader cannot resolve a name.
	ErrShaderNotFound = constructionError("shader not found")
)

// Runtime errors reported by a frame.
var (
	// ErrDeviceLost means the device must be recreated along with every
	// resource that depends on it.
	ErrDeviceLost = errors.New("oscuras: device lost")

	// ErrOutOfMemory means the device ran out of memory. There is no safe
	// way to continue.
	ErrOutOfMemory = errors.New("oscuras: out of memory")

	// ErrTimeout means submitted work or presentation did not complete in
	// time. The next frame may succeed.
	ErrTimeout = errors.New("oscuras: timeout")

	// ErrOutdated means a presentation target changed under the frame.
	// The next frame may succeed.
	ErrOutdated = errors.New("oscuras: outdated")

	// ErrNotImplemented is returned by operations that exist only as hooks.
	ErrNotImplemented = errors.New("oscuras: not implemented")

	// ErrClosed is returned when a closed engine or context is used.
	ErrClosed = errors.New("oscuras: closed")
)

type classError struct {
	msg   string
	class error
}

func (e *classError) Error() string { return "oscuras: " + e.msg }

func (e *classError) Is(target error) bool { return target == e.class }

func constructionError(msg string) error {
	return &classError{msg: msg, class: ErrConstruction}
}

// Severity tells a frame loop what to do with an error.
type Severity int

const (
	// SeverityNone is returned for a nil error.
	SeverityNone Severity = iota

	// SeverityTransient errors drop the current frame; the loop continues.
	SeverityTransient

	// SeverityRebuild errors require recreating the device and engine.
	SeverityRebuild

	// SeverityFatal errors end the loop.
	SeverityFatal
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityTransient:
		return "transient"
	case SeverityRebuild:
		return "rebuild"
	case SeverityFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Classify maps err to the action a frame loop should take. Unknown errors
// are fatal.
func Classify(err error) Severity {
	switch {
	case err == nil:
		return SeverityNone
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrOutdated):
		return SeverityTransient
	case errors.Is(err, ErrDeviceLost):
		return SeverityRebuild
	default:
		return SeverityFatal
	}
}
