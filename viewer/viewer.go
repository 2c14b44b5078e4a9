// Package viewer drives the pathtracing engine one frame at a time.
//
// A Viewer owns a backend, the camera, the scene and the engine built from
// them. Frame runs the engine and hands the result to a Presenter, then
// routes any error by its oscuras.Severity: transient errors drop the frame,
// a lost device is rebuilt from scratch, anything else is returned.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/camera"
	"github.com/gogpu/oscuras/gpu"
	"github.com/gogpu/oscuras/pathtracer"
	"github.com/gogpu/oscuras/scene"
)

// DefaultMaxRebuilds is the number of consecutive device rebuilds a viewer
// attempts before giving up.
const DefaultMaxRebuilds = 3

// ErrTooManyRebuilds is returned by Frame when the device keeps getting
// lost.
var ErrTooManyRebuilds = errors.New("viewer: too many consecutive rebuilds")

// Presenter receives every completed frame.
type Presenter interface {
	Present(ctx context.Context, e *pathtracer.Engine) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, e *pathtracer.Engine) error

// Present calls f.
func (f PresenterFunc) Present(ctx context.Context, e *pathtracer.Engine) error { return f(ctx, e) }

// Option configures a Viewer.
type Option func(*options)

type options struct {
	presenter   Presenter
	maxRebuilds int
	engineOpts  []pathtracer.Option
}

// WithPresenter sets the presenter. Without one, frames are rendered and
// discarded.
func WithPresenter(p Presenter) Option {
	return func(o *options) { o.presenter = p }
}

// WithMaxRebuilds sets how many consecutive device rebuilds Frame attempts
// before returning ErrTooManyRebuilds.
func WithMaxRebuilds(n int) Option {
	return func(o *options) { o.maxRebuilds = n }
}

// WithEngineOptions passes options to every engine the viewer builds.
func WithEngineOptions(opts ...pathtracer.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// Stats counts frame outcomes.
type Stats struct {
	Frames   int
	Dropped  int
	Rebuilds int
}

// Viewer is a frame loop over one backend. It is not safe for concurrent
// use except for Stats.
type Viewer struct {
	opts    options
	backend backend.Backend
	gctx    *gpu.Context
	cam     *camera.Camera
	scene   *scene.Scene
	engine  *pathtracer.Engine

	consecutive int

	mu    sync.Mutex
	stats Stats
}

// New builds a viewer on an initialized backend. The viewer takes
// ownership of b and closes it in Close. A nil scene means
// scene.Default().
func New(b backend.Backend, width, height int, sc *scene.Scene, opts ...Option) (*Viewer, error) {
	o := options{maxRebuilds: DefaultMaxRebuilds}
	for _, opt := range opts {
		opt(&o)
	}
	if sc == nil {
		sc = scene.Default()
	}
	cam, err := camera.New(width, height)
	if err != nil {
		return nil, err
	}
	gctx, err := b.Context()
	if err != nil {
		return nil, fmt.Errorf("viewer: %s: %w", b.Name(), err)
	}
	v := &Viewer{opts: o, backend: b, gctx: gctx, cam: cam, scene: sc}
	if err := v.buildEngine(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Viewer) buildEngine() error {
	e, err := pathtracer.New(v.gctx, v.cam, v.scene, v.opts.engineOpts...)
	if err != nil {
		return err
	}
	v.engine = e
	return nil
}

// Frame renders and presents one frame.
//
// A transient error drops the frame and Frame returns nil. A lost device
// is rebuilt and Frame returns nil; after more than the configured number
// of consecutive rebuilds it returns ErrTooManyRebuilds. Any other error is
// returned as is.
func (v *Viewer) Frame(ctx context.Context) error {
	if v.engine == nil {
		return oscuras.ErrClosed
	}
	err := v.engine.Run(ctx)
	if err == nil && v.opts.presenter != nil {
		err = v.opts.presenter.Present(ctx, v.engine)
	}

	log := oscuras.Logger()
	switch oscuras.Classify(err) {
	case oscuras.SeverityNone:
		v.consecutive = 0
		v.count(func(s *Stats) { s.Frames++ })
		return nil

	case oscuras.SeverityTransient:
		log.Warn("viewer: frame dropped", "error", err)
		v.count(func(s *Stats) { s.Dropped++ })
		return nil

	case oscuras.SeverityRebuild:
		if v.consecutive >= v.opts.maxRebuilds {
			return fmt.Errorf("%w (%d): %w", ErrTooManyRebuilds, v.consecutive, err)
		}
		v.consecutive++
		log.Info("viewer: device lost, rebuilding", "attempt", v.consecutive, "error", err)
		if rerr := v.rebuild(); rerr != nil {
			return fmt.Errorf("viewer: rebuild after %w: %w", err, rerr)
		}
		v.count(func(s *Stats) {
			s.Dropped++
			s.Rebuilds++
		})
		return nil

	default:
		return err
	}
}

// rebuild reopens the backend and builds a new engine on it.
func (v *Viewer) rebuild() error {
	if v.engine != nil {
		v.engine.Close()
		v.engine = nil
	}
	v.backend.Close()
	if err := v.backend.Init(); err != nil {
		return err
	}
	gctx, err := v.backend.Context()
	if err != nil {
		return err
	}
	v.gctx = gctx
	return v.buildEngine()
}

// Resize replaces the camera and engine with ones at the new resolution.
// On failure the viewer keeps the previous engine.
func (v *Viewer) Resize(width, height int) error {
	cam, err := camera.New(width, height)
	if err != nil {
		return err
	}
	if w, h := v.cam.Resolution(); int(w) == width && int(h) == height && v.engine != nil {
		return nil
	}
	old := v.engine
	if old != nil {
		old.Close()
	}
	e, err := pathtracer.New(v.gctx, cam, v.scene, v.opts.engineOpts...)
	if err != nil {
		// Restore an engine at the old size so the loop can continue.
		if restored, rerr := pathtracer.New(v.gctx, v.cam, v.scene, v.opts.engineOpts...); rerr == nil {
			v.engine = restored
		} else {
			v.engine = nil
		}
		return fmt.Errorf("viewer: resize to %dx%d: %w", width, height, err)
	}
	v.cam = cam
	v.engine = e
	oscuras.Logger().Debug("viewer: resized", "width", width, "height", height)
	return nil
}

// SetScene replaces the scene and rebuilds the engine around it.
func (v *Viewer) SetScene(sc *scene.Scene) error {
	if sc == nil {
		return errors.New("viewer: nil scene")
	}
	if v.engine != nil {
		v.engine.Close()
		v.engine = nil
	}
	v.scene = sc
	return v.buildEngine()
}

func (v *Viewer) count(f func(*Stats)) {
	v.mu.Lock()
	f(&v.stats)
	v.mu.Unlock()
}

// Stats returns the frame counters.
func (v *Viewer) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Engine returns the current engine, or nil after Close.
func (v *Viewer) Engine() *pathtracer.Engine { return v.engine }

// Camera returns the current camera.
func (v *Viewer) Camera() *camera.Camera { return v.cam }

// Scene returns the current scene.
func (v *Viewer) Scene() *scene.Scene { return v.scene }

// Backend returns the backend the viewer renders on.
func (v *Viewer) Backend() backend.Backend { return v.backend }

// Close releases the engine and the backend. It is idempotent.
func (v *Viewer) Close() {
	if v.engine != nil {
		v.engine.Close()
		v.engine = nil
	}
	if v.backend != nil {
		v.backend.Close()
		v.backend = nil
	}
}
