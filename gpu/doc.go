// Package gpu holds the device context and the resource wrappers the
// engine builds on: buffers, storage textures and samplers.
//
// Each wrapper knows how to describe itself as a binding. A Buffer derives
// its binding type from the usage it was allocated with, so a layout entry
// and the allocation behind it cannot disagree.
package gpu
