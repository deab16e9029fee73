package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-bridge/engine/config"
	"github.com/Carmen-Shannon/oxy-bridge/engine/delegate"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/profiler"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/prometheus/client_golang/prometheus"
)

// FrameSource delivers the frames the host is about to draw.
type FrameSource interface {
	// NextFrame blocks until the host has the next frame ready.
	//
	// Parameters:
	//   - ctx: cancelled when the bridge quits
	//
	// Returns:
	//   - host.Frame: the frame
	//   - bool: false once the host has no more frames
	NextFrame(ctx context.Context) (host.Frame, bool)
}

// channelFrameSource is a FrameSource reading from a channel.
type channelFrameSource struct {
	frames <-chan host.Frame
}

// NewChannelFrameSource creates a FrameSource that yields the frames sent on ch and
// ends when ch is closed.
//
// Parameters:
//   - ch: the frame channel
//
// Returns:
//   - FrameSource: the frame source
func NewChannelFrameSource(ch <-chan host.Frame) FrameSource {
	return &channelFrameSource{frames: ch}
}

func (s *channelFrameSource) NextFrame(ctx context.Context) (host.Frame, bool) {
	select {
	case <-ctx.Done():
		return host.Frame{}, false
	case f, ok := <-s.frames:
		return f, ok
	}
}

// bridge implements the Bridge interface.
// Owns the scene delegate and the goroutine every delegate call is made from.
type bridge struct {
	paramsChannel chan config.Params // pending parameter change, latest wins

	started atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	logger *slog.Logger
	reg    prometheus.Registerer

	host     host.Host
	index    render_index.RenderIndex
	source   FrameSource
	delegate delegate.SceneDelegate

	delegateOptions []delegate.SceneDelegateBuilderOption
	paramsFile      string

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	frameCallback func(frame host.Frame, deltaTime float32)
	frames        atomic.Uint64
}

// Bridge is the runtime entry point. It owns a scene delegate bound to one host and
// one render index and drives it from a single goroutine: each frame it applies any
// pending parameter change, runs the pre-frame sync pass against the frame's draw
// context and reconciles the frame's render-item delta batch.
type Bridge interface {
	// Delegate returns the scene delegate the bridge drives. Its mutating methods must
	// only be called from the frame callback while Run is active.
	//
	// Returns:
	//   - delegate.SceneDelegate: the delegate
	Delegate() delegate.SceneDelegate

	// EnableProfiler enables the periodic frame statistics log.
	EnableProfiler()

	// DisableProfiler disables the periodic frame statistics log.
	DisableProfiler()

	// SetParams queues new delegate parameters. They are applied on the bridge's
	// goroutine before the next frame; a newer call replaces a pending one.
	// Safe to call from any goroutine.
	//
	// Parameters:
	//   - p: the new parameters
	SetParams(p config.Params)

	// SetFrameCallback registers the function called after every synced frame, on the
	// bridge's goroutine. Use it to hand the synced render index to the renderer.
	//
	// Parameters:
	//   - callback: receives the frame and the seconds elapsed since the previous frame
	SetFrameCallback(callback func(frame host.Frame, deltaTime float32))

	// Frames returns the number of frames synced so far.
	//
	// Returns:
	//   - uint64: the frame count
	Frames() uint64

	// Run populates the delegate and syncs frames until the frame source ends, ctx is
	// cancelled or Quit is called, then closes the delegate. A bridge runs once.
	//
	// Parameters:
	//   - ctx: the context bounding the run
	//
	// Returns:
	//   - error: error if population fails or the delegate cannot be closed cleanly
	Run(ctx context.Context) error

	// Quit signals the bridge goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewBridge creates a new Bridge syncing idx from h with frames pulled from source.
//
// Parameters:
//   - h: the host
//   - idx: the render index
//   - source: the frame source
//   - options: functional options for bridge configuration
//
// Returns:
//   - Bridge: the newly created bridge
func NewBridge(h host.Host, idx render_index.RenderIndex, source FrameSource, options ...BridgeBuilderOption) Bridge {
	if h == nil || idx == nil || source == nil {
		panic("engine: NewBridge requires a host, a render index and a frame source")
	}
	b := &bridge{
		paramsChannel: make(chan config.Params, 1),
		quitChannel:   make(chan struct{}),
		logger:        slog.Default(),
		host:          h,
		index:         idx,
		source:        source,
	}

	for _, opt := range options {
		opt(b)
	}

	if b.reg == nil {
		b.reg = prometheus.NewRegistry()
	}
	b.logger = b.logger.With("component", "bridge")

	delegateOptions := append([]delegate.SceneDelegateBuilderOption{
		delegate.WithLogger(b.logger),
		delegate.WithRegisterer(b.reg),
	}, b.delegateOptions...)
	b.delegate = delegate.NewSceneDelegate(h, idx, delegateOptions...)

	if b.profiler == nil {
		b.profiler = profiler.NewProfiler(profiler.WithLogger(b.logger), profiler.WithRegisterer(b.reg))
	}
	return b
}

func (b *bridge) Delegate() delegate.SceneDelegate {
	return b.delegate
}

func (b *bridge) EnableProfiler() {
	b.profilingEnabled.Store(true)
}

func (b *bridge) DisableProfiler() {
	b.profilingEnabled.Store(false)
}

func (b *bridge) SetParams(p config.Params) {
	// Non-blocking send - if a change is pending, replace it
	select {
	case b.paramsChannel <- p:
	default:
		select {
		case <-b.paramsChannel:
		default:
		}
		select {
		case b.paramsChannel <- p:
		default:
		}
	}
}

func (b *bridge) SetFrameCallback(callback func(frame host.Frame, deltaTime float32)) {
	b.frameCallback = callback
}

func (b *bridge) Frames() uint64 {
	return b.frames.Load()
}

func (b *bridge) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("engine: a bridge can only run once")
	}
	if err := b.delegate.Populate(ctx); err != nil {
		b.signalQuit()
		return fmt.Errorf("failed to populate delegate: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.handle(runCtx)

	select {
	case <-runCtx.Done():
		b.signalQuit()
	case <-b.quitChannel:
	}
	cancel()
	b.wg.Wait()

	if err := b.delegate.Close(); err != nil {
		return fmt.Errorf("failed to close delegate: %w", err)
	}
	return nil
}

// Quit signals all bridge goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (b *bridge) Quit() {
	b.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (b *bridge) signalQuit() {
	b.quitOnce.Do(func() {
		close(b.quitChannel)
	})
}

// handle launches the frame goroutine and, when a params file is set, its watcher.
// Each goroutine is tracked by the bridge's WaitGroup.
func (b *bridge) handle(ctx context.Context) {
	b.wg.Add(1)
	go b.handleFrames(ctx)

	if b.paramsFile != "" {
		b.wg.Add(1)
		go b.handleParamsFile(ctx)
	}
}

// handleFrames is the owner goroutine: the only caller of the delegate's mutating
// methods while the bridge runs. Recovers from panics to avoid crashing the process
// and signals quit on recovery.
func (b *bridge) handleFrames(ctx context.Context) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("frame goroutine recovered from panic", "panic", r)
			b.signalQuit()
		}
	}()

	lastFrame := time.Now()

	for {
		select {
		case <-b.quitChannel:
			return
		case p := <-b.paramsChannel:
			b.delegate.SetParams(p)
			continue
		default:
		}

		frame, ok := b.source.NextFrame(ctx)
		if !ok {
			b.signalQuit()
			return
		}

		// a change queued while waiting applies to this frame
		select {
		case p := <-b.paramsChannel:
			b.delegate.SetParams(p)
		default:
		}

		start := time.Now()
		dt := float32(start.Sub(lastFrame).Seconds())
		lastFrame = start

		b.delegate.PreFrame(ctx, frame.Context)
		b.delegate.HandleCompleteViewportScene(ctx, frame.Scene)
		syncTime := time.Since(start)
		b.frames.Add(1)

		if b.frameCallback != nil {
			b.frameCallback(frame, dt)
		}

		if b.profilingEnabled.Load() && b.profiler != nil {
			b.profiler.Tick(syncTime)
		}
	}
}

// handleParamsFile forwards every reload of the params file to SetParams until ctx ends.
func (b *bridge) handleParamsFile(ctx context.Context) {
	defer b.wg.Done()
	if err := config.Watch(ctx, b.paramsFile, b.logger, b.SetParams); err != nil {
		b.logger.Warn("params watch stopped", "path", b.paramsFile, "err", err)
	}
}
