package pathtracer

import (
	"time"

	"github.com/gogpu/oscuras/shader"
)

// DefaultTimeout bounds one frame's submit and wait when the caller's
// context has no deadline.
const DefaultTimeout = 5 * time.Second

// Option configures an Engine.
type Option func(*options)

type options struct {
	loader  shader.Loader
	label   string
	timeout time.Duration
}

func defaultOptions() options {
	return options{label: "pathtracer", timeout: DefaultTimeout}
}

// WithShaderLoader sets where kernels come from. By default the embedded
// WGSL kernels are compiled with naga, or, on a device that runs kernels
// on the host, named without code.
func WithShaderLoader(l shader.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithLabel sets the prefix of every device resource label.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithTimeout bounds Run when its context has no deadline. Zero disables
// the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}
