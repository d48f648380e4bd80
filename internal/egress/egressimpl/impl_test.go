package egressimpl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/platform"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	connectErr  error
}

func (f *fakeProvider) Connect(_ context.Context, _ *domain.EgressPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeProvider) Disconnect(_ context.Context, _ *domain.EgressPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

type fakeProber struct {
	mu      sync.Mutex
	results map[string]error
	calls   map[string]int
}

func newFakeProber() *fakeProber {
	return &fakeProber{results: make(map[string]error), calls: make(map[string]int)}
}

func (f *fakeProber) Verify(_ context.Context, path *domain.EgressPath, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path.Name]++
	return f.results[path.Name]
}

func (f *fakeProber) callsFor(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type fakeAdapter struct {
	name string
}

func (f *fakeAdapter) Name() string     { return f.name }
func (f *fakeAdapter) Endpoint() string { return "https://" + f.name + ".example.com" }
func (f *fakeAdapter) Upload(context.Context, platform.UploadInput) (*platform.UploadResult, error) {
	return &platform.UploadResult{ExternalID: "ext-1"}, nil
}
func (f *fakeAdapter) CheckReachable(context.Context) bool { return true }

func newTestPool(t *testing.T, pathNames ...string) (*PoolImpl, *fakeProvider, *fakeProber, *clockwork.FakeClock) {
	t.Helper()

	states := make([]*pathState, 0, len(pathNames))
	for _, name := range pathNames {
		states = append(states, &pathState{path: &domain.EgressPath{
			Name:     name,
			Region:   "eu-1",
			ProxyURL: "http://" + name + ".proxy:3128",
			State:    domain.EgressStateUnknown,
		}})
	}

	provider := &fakeProvider{}
	prober := newFakeProber()
	clock := clockwork.NewFakeClock()

	pool := &PoolImpl{
		Provider: provider,
		Prober:   prober,
		Registry: platform.NewRegistry(&fakeAdapter{name: "alpha"}),
		Logger:   logger.NewNop(),
		Clock:    clock,
		cooldown: 10 * time.Minute,
		paths:    states,
		freed:    make(chan struct{}, 1),
	}
	return pool, provider, prober, clock
}

func TestAcquire_ReturnsFirstVerifiedPath(t *testing.T) {
	pool, _, _, _ := newTestPool(t, "path-1", "path-2")

	handle, err := pool.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "path-1", handle.Path.Name)
	assert.Equal(t, domain.EgressStateVerified, handle.Path.State)
	handle.Release()
}

func TestAcquire_SkipsFailingPath(t *testing.T) {
	pool, provider, prober, _ := newTestPool(t, "path-1", "path-2")
	prober.results["path-1"] = errors.New("probe timeout")

	handle, err := pool.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "path-2", handle.Path.Name)

	// The failed path must have been disconnected again.
	assert.Equal(t, 1, provider.disconnects)
	handle.Release()
}

func TestAcquire_AllPathsFailIsEgressExhausted(t *testing.T) {
	pool, _, prober, _ := newTestPool(t, "path-1", "path-2")
	prober.results["path-1"] = errors.New("probe timeout")
	prober.results["path-2"] = errors.New("probe timeout")

	_, err := pool.Acquire(context.Background(), "alpha")
	require.Error(t, err)
	assert.True(t, apperrors.IsEgressExhausted(err))
}

func TestAcquire_CooldownSkipsRecentlyFailedPath(t *testing.T) {
	pool, _, prober, clock := newTestPool(t, "path-1")
	prober.results["path-1"] = errors.New("probe timeout")

	_, err := pool.Acquire(context.Background(), "alpha")
	require.Error(t, err)
	require.Equal(t, 1, prober.callsFor("path-1"))

	// Within the cool-down the path is not re-probed.
	_, err = pool.Acquire(context.Background(), "alpha")
	require.Error(t, err)
	assert.Equal(t, 1, prober.callsFor("path-1"))

	clock.Advance(10 * time.Minute)
	prober.results["path-1"] = nil
	handle, err := pool.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, prober.callsFor("path-1"))
	handle.Release()
}

func TestAcquire_WaitsForBusyPath(t *testing.T) {
	pool, _, _, _ := newTestPool(t, "path-1")

	first, err := pool.Acquire(context.Background(), "alpha")
	require.NoError(t, err)

	got := make(chan *struct {
		name string
		err  error
	}, 1)
	go func() {
		h, err := pool.Acquire(context.Background(), "alpha")
		if err != nil {
			got <- &struct {
				name string
				err  error
			}{err: err}
			return
		}
		defer h.Release()
		got <- &struct {
			name string
			err  error
		}{name: h.Path.Name}
	}()

	select {
	case <-got:
		t.Fatal("second acquire should block while the path is held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case res := <-got:
		require.NoError(t, res.err)
		assert.Equal(t, "path-1", res.name)
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestAcquire_ReleaseIsIdempotent(t *testing.T) {
	pool, provider, _, _ := newTestPool(t, "path-1")

	handle, err := pool.Acquire(context.Background(), "alpha")
	require.NoError(t, err)

	handle.Release()
	handle.Release()
	assert.Equal(t, 1, provider.disconnects)
}

func TestAcquire_UnknownPlatformRejected(t *testing.T) {
	pool, _, _, _ := newTestPool(t, "path-1")

	_, err := pool.Acquire(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestParsePaths(t *testing.T) {
	paths, err := ParsePaths("vpn-de:eu-central:http://de.proxy:3128, vpn-sg:ap-southeast:http://sg.proxy:3128")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "vpn-de", paths[0].Name)
	assert.Equal(t, "eu-central", paths[0].Region)
	assert.Equal(t, "http://de.proxy:3128", paths[0].ProxyURL)
	assert.Equal(t, "vpn-sg", paths[1].Name)

	_, err = ParsePaths("vpn-de:eu-central")
	assert.Error(t, err)

	paths, err = ParsePaths("")
	require.NoError(t, err)
	assert.Empty(t, paths)
}
