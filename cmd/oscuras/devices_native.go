//go:build !nogpu

package main

import (
	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/backend/native"
)

func init() {
	enumerators[backend.BackendNative] = native.Devices
}
