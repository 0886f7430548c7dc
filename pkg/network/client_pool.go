package network

import (
	"sync"

	"github.com/nspcc-dev/dsocket/pkg/network/frame"
)

// Peer is a pool member.
type Peer interface {
	comparable
	// UniqueTag identifies the peer within the pool.
	UniqueTag() string
	// Send enqueues a message for the peer.
	Send(frame.Sendable) error
}

// ClientPool is a set of peers keyed by their unique tags.
type ClientPool[P Peer] struct {
	codec     frame.Codec
	onFailure func(P, error)

	lock  sync.RWMutex
	peers map[string]P
}

// NewClientPool creates an empty pool. codec is used to prepare broadcast
// frames, onFailure (if not nil) is called for every failed send.
func NewClientPool[P Peer](codec frame.Codec, onFailure func(P, error)) *ClientPool[P] {
	return &ClientPool[P]{
		codec:     codec,
		onFailure: onFailure,
		peers:     make(map[string]P),
	}
}

// Cache adds the peer to the pool, replacing any peer with the same tag.
func (c *ClientPool[P]) Cache(p P) {
	c.lock.Lock()
	c.peers[p.UniqueTag()] = p
	c.lock.Unlock()
}

// FindByUniqueTag returns the peer with the given tag.
func (c *ClientPool[P]) FindByUniqueTag(tag string) (P, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	p, ok := c.peers[tag]
	return p, ok
}

// Evict removes the peer with the given tag and returns it.
func (c *ClientPool[P]) Evict(tag string) (P, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	p, ok := c.peers[tag]
	if ok {
		delete(c.peers, tag)
	}
	return p, ok
}

// remove removes the peer if it's still cached under its tag.
func (c *ClientPool[P]) remove(p P) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	tag := p.UniqueTag()
	if have, ok := c.peers[tag]; !ok || have != p {
		return false
	}
	delete(c.peers, tag)
	return true
}

// Size returns the number of peers in the pool.
func (c *ClientPool[P]) Size() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.peers)
}

// Peers returns a snapshot of the pool.
func (c *ClientPool[P]) Peers() []P {
	c.lock.RLock()
	defer c.lock.RUnlock()
	res := make([]P, 0, len(c.peers))
	for _, p := range c.peers {
		res = append(res, p)
	}
	return res
}

// SendToAll sends the message to every peer of the pool. The frame is
// encoded once. Failures are reported per peer and don't stop the
// broadcast, the number of successful sends is returned.
func (c *ClientPool[P]) SendToAll(s frame.Sendable) int {
	peers := c.Peers()
	prepared, err := c.codec.Prepare(s)
	if err != nil {
		for _, p := range peers {
			c.fail(p, err)
		}
		return 0
	}
	var sent int
	for _, p := range peers {
		if err := p.Send(prepared); err != nil {
			c.fail(p, err)
			continue
		}
		sent++
	}
	return sent
}

func (c *ClientPool[P]) fail(p P, err error) {
	if c.onFailure != nil {
		c.onFailure(p, err)
	}
}
