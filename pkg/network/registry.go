package network

import (
	"fmt"
	"sync"

	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"go.uber.org/zap"
)

// ServerFactory creates servers for the Registry.
type ServerFactory func(port uint16, log *zap.Logger, delivery *action.Delivery) (ServerManager, error)

// RegistryOption is a Registry constructor option.
type RegistryOption func(*Registry)

// WithServerFactory sets the factory used by GetServer.
func WithServerFactory(f ServerFactory) RegistryOption {
	return func(r *Registry) {
		r.factory = f
	}
}

// WithDelivery makes the Registry use the given (shared) delivery service
// instead of its own. The Registry doesn't stop it on Close.
func WithDelivery(d *action.Delivery) RegistryOption {
	return func(r *Registry) {
		r.delivery = d
		r.ownDelivery = false
	}
}

// WithDialer sets the dialer of the managers created by the Registry.
func WithDialer(d Dialer) RegistryOption {
	return func(r *Registry) {
		r.dialer = d
	}
}

// Registry keeps at most one Manager per connection identity and the servers
// by their ports.
type Registry struct {
	log         *zap.Logger
	delivery    *action.Delivery
	ownDelivery bool
	dialer      Dialer
	factory     ServerFactory

	lock     sync.Mutex
	managers map[endpoint.Info]*Manager
	servers  map[uint16]ServerManager
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger, opts ...RegistryOption) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		log:      log,
		managers: make(map[endpoint.Info]*Manager),
		servers:  make(map[uint16]ServerManager),
	}
	for _, o := range opts {
		o(r)
	}
	if r.delivery == nil {
		r.delivery = action.NewDelivery(log)
		r.ownDelivery = true
	}
	return r
}

// Delivery returns the delivery service used by managers of the Registry.
func (r *Registry) Delivery() *action.Delivery {
	return r.delivery
}

// Get returns the manager for the given identity, a new one with
// DefaultOptions is created if there is none. A kept manager that is not
// Holden is replaced by a new one with the same options.
func (r *Registry) Get(info endpoint.Info) *Manager {
	r.lock.Lock()
	m, ok := r.managers[info]
	if !ok {
		m = r.createLocked(info, DefaultOptions())
		r.lock.Unlock()
		return m
	}
	m, stale := r.obtainLocked(info, m.Options())
	r.lock.Unlock()

	r.dropStale(info, stale)
	return m
}

// GetOrCreate returns the manager for the given identity with the given
// options. If there is a manager already and opts are Holden, its options are
// replaced and it's returned. Otherwise the existing manager is closed and
// replaced by a new one.
func (r *Registry) GetOrCreate(info endpoint.Info, opts Options) *Manager {
	r.lock.Lock()
	m, stale := r.obtainLocked(info, opts)
	r.lock.Unlock()

	r.dropStale(info, stale)
	return m
}

// obtainLocked returns the manager to use for info and the replaced one if
// any, the latter must be closed without holding the lock.
func (r *Registry) obtainLocked(info endpoint.Info, opts Options) (*Manager, *Manager) {
	m, ok := r.managers[info]
	if ok && opts.Holden {
		m.SetOptions(opts)
		return m, nil
	}
	var stale *Manager
	if ok {
		stale = m
		delete(r.managers, info)
	}
	return r.createLocked(info, opts), stale
}

func (r *Registry) dropStale(info endpoint.Info, stale *Manager) {
	if stale == nil {
		return
	}
	r.log.Debug("replacing manager", zap.Stringer("endpoint", info), zap.String("id", stale.ID()))
	stale.setRebinder(nil)
	stale.Close()
}

func (r *Registry) createLocked(info endpoint.Info, opts Options) *Manager {
	m := NewManager(info, opts, r.log, r.delivery, r.dialer)
	m.rebinder = r
	r.managers[info] = m
	return m
}

// ListActive returns holden managers. Managers that are not holden are
// evicted from the Registry.
func (r *Registry) ListActive() []*Manager {
	r.lock.Lock()
	defer r.lock.Unlock()
	res := make([]*Manager, 0, len(r.managers))
	for info, m := range r.managers {
		if m.Options().Holden {
			res = append(res, m)
			continue
		}
		delete(r.managers, info)
	}
	return res
}

// Rebind implements the Rebinder interface, the manager is moved from the
// old key to the new one if it's registered under the old key. A different
// manager registered under the new key is closed.
func (r *Registry) Rebind(m *Manager, old, new endpoint.Info) {
	r.lock.Lock()
	if r.managers[old] != m {
		r.lock.Unlock()
		return
	}
	delete(r.managers, old)
	displaced := r.managers[new]
	r.managers[new] = m
	r.lock.Unlock()

	r.log.Debug("manager rebound", zap.Stringer("old", old), zap.Stringer("new", new))
	if displaced != nil && displaced != m {
		r.log.Warn("endpoint switch displaced another manager",
			zap.Stringer("endpoint", new), zap.String("id", displaced.ID()))
		displaced.setRebinder(nil)
		displaced.Close()
	}
}

// GetServer returns the server listening (or to listen) on the given port.
// New servers are created via the ServerFactory and are not started.
func (r *Registry) GetServer(port uint16) (ServerManager, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if s, ok := r.servers[port]; ok {
		return s, nil
	}
	if r.factory == nil {
		return nil, ErrNoServerImplementation
	}
	s, err := r.factory(port, r.log, r.delivery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoServerImplementation, err)
	}
	if s == nil {
		return nil, ErrNoServerImplementation
	}
	r.servers[port] = s
	return s, nil
}

// Close closes all managers and shuts all servers down.
func (r *Registry) Close() {
	r.lock.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	servers := make([]ServerManager, 0, len(r.servers))
	for _, s := range r.servers {
		servers = append(servers, s)
	}
	r.managers = make(map[endpoint.Info]*Manager)
	r.servers = make(map[uint16]ServerManager)
	r.lock.Unlock()

	for _, m := range managers {
		m.setRebinder(nil)
		m.Close()
	}
	for _, s := range servers {
		s.Shutdown()
	}
	for _, m := range managers {
		m.Wait()
	}
	if r.ownDelivery {
		r.delivery.Stop()
	}
}
