package network

import (
	"errors"
	"sync"
	"testing"

	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestRegistryOneManagerPerIdentity(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	t.Cleanup(r.Close)
	info := endpoint.New("127.0.0.1", 20333)

	const n = 50
	var (
		wg  sync.WaitGroup
		res = make([]*Manager, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				res[i] = r.Get(info)
			} else {
				res[i] = r.GetOrCreate(info, DefaultOptions())
			}
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		require.Same(t, res[0], res[i])
	}
	require.Len(t, r.ListActive(), 1)

	other := r.Get(info.WithTag("other"))
	require.NotSame(t, res[0], other)
	require.Len(t, r.ListActive(), 2)
}

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	t.Cleanup(r.Close)
	info := endpoint.New("localhost", 1)

	m := r.Get(info)
	require.Equal(t, DefaultOptions().ConnectTimeout, m.Options().ConnectTimeout)

	opts := testOptions()
	opts.ConnectTimeout = 42
	require.Same(t, m, r.GetOrCreate(info, opts))
	require.EqualValues(t, 42, m.Options().ConnectTimeout)

	opts.Holden = false
	fresh := r.GetOrCreate(info, opts)
	require.NotSame(t, m, fresh)
	require.False(t, fresh.Options().Holden)
}

func TestRegistryGetReplacesTransient(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	t.Cleanup(r.Close)
	info := endpoint.New("localhost", 1)

	opts := testOptions()
	opts.Holden = false
	opts.ConnectTimeout = 42
	transient := r.GetOrCreate(info, opts)

	fresh := r.Get(info)
	require.NotSame(t, transient, fresh)
	require.False(t, fresh.Options().Holden)
	require.EqualValues(t, 42, fresh.Options().ConnectTimeout)
	require.Equal(t, Idle, transient.State())
	require.NotSame(t, fresh, r.Get(info))

	// Holden ones are kept as is.
	holden := r.GetOrCreate(info, testOptions())
	require.Same(t, holden, r.Get(info))
	require.Same(t, holden, r.Get(info))
}

func TestRegistryListActive(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	t.Cleanup(r.Close)

	holden := r.GetOrCreate(endpoint.New("localhost", 1), testOptions())
	opts := testOptions()
	opts.Holden = false
	transient := r.GetOrCreate(endpoint.New("localhost", 2), opts)

	active := r.ListActive()
	require.Equal(t, []*Manager{holden}, active)
	// Evicted, so a new one is created.
	require.NotSame(t, transient, r.Get(endpoint.New("localhost", 2)))
}

func TestRegistryRebind(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	t.Cleanup(r.Close)
	a, b := endpoint.New("localhost", 1), endpoint.New("localhost", 2)

	m := r.Get(a)
	m.SwitchEndpoint(b)
	require.Same(t, m, r.Get(b))
	require.NotSame(t, m, r.Get(a))

	// Switching onto an occupied identity displaces the other manager.
	other := r.Get(a)
	m.SwitchEndpoint(a)
	require.Same(t, m, r.Get(a))
	require.Equal(t, Idle, other.State())
	r.lock.Lock()
	_, ok := r.managers[b]
	r.lock.Unlock()
	require.False(t, ok)

	// Managers not kept by the registry are not added.
	alone := NewManager(b, testOptions(), nil, nil, nil)
	r.Rebind(alone, a, b)
	require.NotSame(t, alone, r.Get(b))
}

func TestRegistryGetServer(t *testing.T) {
	t.Run("no factory", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		t.Cleanup(r.Close)
		_, err := r.GetServer(20333)
		require.ErrorIs(t, err, ErrNoServerImplementation)
	})
	t.Run("factory error", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t), WithServerFactory(func(uint16, *zap.Logger, *action.Delivery) (ServerManager, error) {
			return nil, errors.New("broken")
		}))
		t.Cleanup(r.Close)
		_, err := r.GetServer(20333)
		require.ErrorIs(t, err, ErrNoServerImplementation)
	})
	t.Run("cached", func(t *testing.T) {
		var calls int
		r := NewRegistry(zaptest.NewLogger(t), WithServerFactory(func(port uint16, _ *zap.Logger, _ *action.Delivery) (ServerManager, error) {
			calls++
			return NewTCPServer(port, DefaultServerOptions(), nil, nil), nil
		}))
		t.Cleanup(r.Close)
		s1, err := r.GetServer(20333)
		require.NoError(t, err)
		require.EqualValues(t, 20333, s1.Port())
		require.False(t, s1.IsLive())
		s2, err := r.GetServer(20333)
		require.NoError(t, err)
		require.Same(t, s1, s2)
		require.Equal(t, 1, calls)
	})
	t.Run("tcp factory", func(t *testing.T) {
		opts := DefaultServerOptions()
		opts.BindAddress = "127.0.0.1"
		r := NewRegistry(zaptest.NewLogger(t), WithServerFactory(NewTCPServerFactory(opts)))
		s, err := r.GetServer(0)
		require.NoError(t, err)
		require.NoError(t, s.Listen())
		require.True(t, s.IsLive())
		r.Close()
		require.False(t, s.IsLive())
	})
}

func TestRegistryClose(t *testing.T) {
	_, info := newEchoServer(t, DefaultServerOptions())
	d := action.NewDelivery(zaptest.NewLogger(t))
	r := NewRegistry(zaptest.NewLogger(t), WithDelivery(d))
	require.Same(t, d, r.Delivery())

	opts := testOptions()
	opts.CallbackMode = action.ModeIndependent
	m := r.GetOrCreate(info, opts)
	rec := &recorder{}
	m.Register(rec)
	m.Connect()
	rec.waitFor(t, action.ConnectionSuccess, 1)

	r.Close()
	require.Equal(t, Idle, m.State())
	rec.waitFor(t, action.Disconnection, 1)
	require.Empty(t, r.ListActive())
	d.Stop()
}
