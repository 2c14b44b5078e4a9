//go:build rust

package rust

import (
	"errors"
	"testing"

	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/gpucore"
)

func TestBackendRegistration(t *testing.T) {
	if !backend.IsRegistered(backend.BackendRust) {
		t.Error("rust backend should be registered")
	}
	b := backend.Get(backend.BackendRust)
	if b == nil {
		t.Fatal("backend.Get(BackendRust) should not return nil")
	}
	if b.Name() != backend.BackendRust {
		t.Errorf("Name() = %q, want %q", b.Name(), backend.BackendRust)
	}
}

func TestBackendNotInitialized(t *testing.T) {
	b := New()
	if b.IsInitialized() {
		t.Error("backend should not be initialized initially")
	}
	if _, err := b.Context(); !errors.Is(err, backend.ErrNotInitialized) {
		t.Errorf("Context() = %v, want ErrNotInitialized", err)
	}
	if got := b.Info(); got != (gpucore.AdapterInfo{}) {
		t.Errorf("Info() = %+v, want zero value", got)
	}
	b.Close()
}
