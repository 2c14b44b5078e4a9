//go:build !rust

package rust

import "github.com/gogpu/oscuras/backend"

// init registers a nil-returning factory when the rust tag is not set, so
// backend.Get(backend.BackendRust) returns nil and selection moves on.
func init() {
	backend.Register(backend.BackendRust, func() backend.Backend {
		return nil
	})
}
