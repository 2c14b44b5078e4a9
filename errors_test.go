package oscuras

import (
	"errors"
	"fmt"
	"testing"
)

func TestConstructionErrorsMatchClass(t *testing.T) {
	for _, err := range []error{
		ErrInvalidResolution,
		ErrSingularTransform,
		ErrUnsupportedBindingUsage,
		ErrShaderNotFound,
	} {
		if !errors.Is(err, ErrConstruction) {
			t.Errorf("errors.Is(%v, ErrConstruction) = false, want true", err)
		}
		wrapped := fmt.Errorf("camera: 0x10: %w", err)
		if !errors.Is(wrapped, err) || !errors.Is(wrapped, ErrConstruction) {
			t.Errorf("wrapped %v lost its identity", err)
		}
	}
	if errors.Is(ErrDeviceLost, ErrConstruction) {
		t.Error("ErrDeviceLost should not be a construction error")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Severity
	}{
		{nil, SeverityNone},
		{ErrTimeout, SeverityTransient},
		{fmt.Errorf("present: %w", ErrOutdated), SeverityTransient},
		{fmt.Errorf("submit: %w", ErrDeviceLost), SeverityRebuild},
		{ErrOutOfMemory, SeverityFatal},
		{ErrSingularTransform, SeverityFatal},
		{errors.New("unknown"), SeverityFatal},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSeverityString(t *testing.T) {
	if got := SeverityRebuild.String(); got != "rebuild" {
		t.Errorf("String() = %q, want %q", got, "rebuild")
	}
	if got := Severity(42).String(); got != "Severity(42)" {
		t.Errorf("String() = %q, want %q", got, "Severity(42)")
	}
}
