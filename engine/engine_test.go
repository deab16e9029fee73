package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-bridge/engine/config"
	"github.com/Carmen-Shannon/oxy-bridge/engine/delegate"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	host   host.MemoryHost
	index  render_index.MemoryIndex
	frames chan host.Frame
	reg    *prometheus.Registry
	bridge Bridge
}

func newFixture(t *testing.T, options ...BridgeBuilderOption) *fixture {
	t.Helper()
	f := &fixture{
		host:   host.NewMemoryHost(),
		index:  render_index.NewMemoryIndex(),
		frames: make(chan host.Frame),
		reg:    prometheus.NewRegistry(),
	}
	grp := f.host.CreateNode(nil, "pCube1", "transform", host.KindTransform)
	shape := f.host.CreateNode(grp, "pCubeShape1", "mesh", host.KindMesh)
	f.host.SetAttribute(shape, host.AttrPoints, []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	f.host.SetAttribute(shape, host.AttrFaceVertexCounts, []int32{3})
	f.host.SetAttribute(shape, host.AttrFaceVertexIndices, []int32{0, 1, 2})

	params := config.DefaultParams()
	params.UseMeshAdapter = true
	params.SyncWorkers = 1
	base := []BridgeBuilderOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRegisterer(f.reg),
		WithDelegateOptions(delegate.WithParams(params), delegate.WithDelegateID("/bridge")),
	}
	f.bridge = NewBridge(f.host, f.index, NewChannelFrameSource(f.frames), append(base, options...)...)
	return f
}

// start runs the bridge in the background and returns the channel its result arrives on.
func (f *fixture) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- f.bridge.Run(ctx)
	}()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		require.FailNow(t, "bridge did not stop")
		return nil
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestNewBridgePanicsOnNilCollaborators(t *testing.T) {
	assert.Panics(t, func() {
		NewBridge(nil, render_index.NewMemoryIndex(), NewChannelFrameSource(nil))
	})
	assert.Panics(t, func() {
		NewBridge(host.NewMemoryHost(), render_index.NewMemoryIndex(), nil)
	})
}

func TestRunSyncsFramesUntilSourceEnds(t *testing.T) {
	f := newFixture(t, WithProfiling(true))
	var prims atomic.Int64
	f.bridge.SetFrameCallback(func(host.Frame, float32) {
		prims.Store(int64(f.index.Len()))
	})

	done := f.start(context.Background())
	for range 3 {
		f.frames <- host.Frame{Context: host.DrawContext{DisplayStyle: host.DisplayShaded}}
	}
	close(f.frames)

	require.NoError(t, wait(t, done))
	assert.Equal(t, uint64(3), f.bridge.Frames())
	assert.Positive(t, prims.Load())
	assert.Equal(t, 3.0, counterValue(t, f.reg, "oxybridge_frames_total"))

	// closing the delegate releases everything it inserted
	assert.Zero(t, f.index.Len())
	assert.Zero(t, f.host.Subscribers())
	assert.Zero(t, f.host.LiveCallbacks())

	assert.Error(t, f.bridge.Run(context.Background()))
}

func TestProfilerDisabledRecordsNothing(t *testing.T) {
	f := newFixture(t)
	done := f.start(context.Background())
	f.frames <- host.Frame{}
	close(f.frames)

	require.NoError(t, wait(t, done))
	assert.Equal(t, uint64(1), f.bridge.Frames())
	assert.Zero(t, counterValue(t, f.reg, "oxybridge_frames_total"))
}

func TestSetParamsAppliesBeforeNextFrame(t *testing.T) {
	f := newFixture(t)
	var smooth atomic.Bool
	f.bridge.SetFrameCallback(func(host.Frame, float32) {
		smooth.Store(f.bridge.Delegate().Params().DisplaySmoothMeshes)
	})

	p := f.bridge.Delegate().Params()
	p.DisplaySmoothMeshes = true
	f.bridge.SetParams(p.WithLights(false))
	p.DisplaySmoothMeshes = false
	f.bridge.SetParams(p)
	p.DisplaySmoothMeshes = true
	f.bridge.SetParams(p)

	done := f.start(context.Background())
	f.frames <- host.Frame{}
	close(f.frames)

	require.NoError(t, wait(t, done))
	assert.True(t, smooth.Load())
	assert.True(t, f.bridge.Delegate().Params().Lights(), "only the latest pending change applies")
}

func TestQuitStopsABlockedRun(t *testing.T) {
	f := newFixture(t)
	done := f.start(context.Background())
	f.frames <- host.Frame{}

	f.bridge.Quit()
	f.bridge.Quit()
	require.NoError(t, wait(t, done))
	assert.Equal(t, uint64(1), f.bridge.Frames())
}

func TestContextCancelStopsRun(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := f.start(ctx)
	f.frames <- host.Frame{}

	cancel()
	require.NoError(t, wait(t, done))
	assert.Zero(t, f.index.Len())
}

func TestFramePanicQuitsCleanly(t *testing.T) {
	f := newFixture(t)
	f.bridge.SetFrameCallback(func(host.Frame, float32) {
		panic("renderer exploded")
	})

	done := f.start(context.Background())
	f.frames <- host.Frame{}

	require.NoError(t, wait(t, done))
	assert.Zero(t, f.host.Subscribers())
}

func TestParamsFileReloadReachesDelegate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("use_mesh_adapter: true\n"), 0o644))

	f := newFixture(t, WithParamsFile(path))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := f.start(ctx)

	// keep frames flowing so the owner goroutine picks up the reload
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case f.frames <- host.Frame{}:
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("use_mesh_adapter: true\ndisplay_smooth_meshes: true\n"), 0o644)
		return f.bridge.Delegate().Params().DisplaySmoothMeshes
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, wait(t, done))
}
