// Package mesh is a best-effort, process-local stand-in for the
// distributed-actor "swarm" described in
// original_source/crates/agent/src/agent/remote/*.rs (a libp2p/kameo
// DHT that lets one node register_actor/lookup_actor by name across
// peers). This repo has no real network transport or gossip/consensus
// layer: mesh.Registry only tracks named relays within one process so
// that a session attached from a peer (internal/session.Registry's
// AttachRemoteSession) has somewhere to republish its remote events.
package mesh

import "sync"

// Registry is a process-local directory of named relays, mirroring the
// role of the Rust original's DHT registration calls without any actual
// networking.
type Registry struct {
	mu     sync.RWMutex
	relays map[string]*Relay
}

// NewRegistry returns an empty mesh registry.
func NewRegistry() *Registry {
	return &Registry{relays: make(map[string]*Relay)}
}

// NewRelay creates and registers a relay for sessionID under the
// "event_relay::<session_id>" name used by the Rust original, tagging
// republished events with peerLabel.
func (r *Registry) NewRelay(sessionID, peerLabel string) *Relay {
	relay := &Relay{
		name:      "event_relay::" + sessionID,
		sessionID: sessionID,
		peerLabel: peerLabel,
	}
	r.mu.Lock()
	r.relays[relay.name] = relay
	r.mu.Unlock()
	return relay
}

// Lookup finds a previously registered relay by name, mirroring
// lookup_actor. Returns false if nothing is registered under that name
// (e.g. the mesh hasn't been bootstrapped yet for this peer).
func (r *Registry) Lookup(name string) (*Relay, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	relay, ok := r.relays[name]
	return relay, ok
}

// Remove drops a relay from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.relays, name)
}
