package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrt/agentrt/internal/mesh"
	"github.com/agentrt/agentrt/pkg/types"
)

// SessionActorRef is either a locally-spawned Actor or a handle to a
// session actually owned by a remote peer (spec.md §4.2), grounded on
// original_source/crates/agent/src/agent/session_registry.rs's
// SessionActorRef::{Local,Remote}. Remote attachment in this codebase is
// best-effort event relay only — there is no DHT/gossip/consensus layer,
// per SPEC_FULL.md's mesh scoping.
type SessionActorRef struct {
	Local  *Actor
	Remote *RemoteSession
}

// RemoteSession describes a session actor owned by another process,
// reachable only for event relay via internal/mesh.
type RemoteSession struct {
	PeerLabel string
	Relay     *mesh.Relay
}

func localRef(a *Actor) SessionActorRef { return SessionActorRef{Local: a} }

// Registry maps public session ids to their actor reference and is the
// server-layer structure described in spec.md §4.2 ("lives on the server
// layer; not an actor itself, just a mutex-protected map — acceptable
// because it is only used for routing, never touched during execution").
type Registry struct {
	mu        sync.RWMutex
	service   *Service
	sessions  map[string]SessionActorRef
	peerMesh  *mesh.Registry
}

// NewRegistry builds an empty registry backed by service for the
// storage-facing operations (new_session/load_session/fork_session/
// resume_session/list_sessions all delegate to the storage layer, not the
// actors — spec.md §4.2).
func NewRegistry(service *Service, peerMesh *mesh.Registry) *Registry {
	return &Registry{
		service:  service,
		sessions: make(map[string]SessionActorRef),
		peerMesh: peerMesh,
	}
}

// Get returns the actor reference for routing, if the session is active
// in this process.
func (r *Registry) Get(sessionID string) (SessionActorRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.sessions[sessionID]
	return ref, ok
}

// Insert registers a pre-spawned actor reference.
func (r *Registry) Insert(sessionID string, ref SessionActorRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = ref
}

// Remove drops a session from the registry, shutting down a local actor
// if one was running.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	ref, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if ok && ref.Local != nil {
		ref.Local.Shutdown()
	}
}

// SessionIDs lists every session id currently tracked by this registry.
func (r *Registry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RemoteSessions returns (session_id, peer_label) pairs for sessions
// attached from another peer, used by the session-list handler to merge
// remote sessions into the picker alongside local ones.
func (r *Registry) RemoteSessions() []struct{ SessionID, PeerLabel string } {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []struct{ SessionID, PeerLabel string }
	for id, ref := range r.sessions {
		if ref.Remote != nil {
			out = append(out, struct{ SessionID, PeerLabel string }{id, ref.Remote.PeerLabel})
		}
	}
	return out
}

// NewSession creates a session row, spawns its local actor, and registers
// it (spec.md §4.2 new_session).
func (r *Registry) NewSession(ctx context.Context, directory, title string) (*types.Session, error) {
	sess, err := r.service.Create(ctx, directory, title)
	if err != nil {
		return nil, err
	}
	r.spawnLocal(sess.ID)
	return sess, nil
}

// LoadSession validates a persisted session exists and spawns its actor
// (spec.md §4.2 load_session).
func (r *Registry) LoadSession(ctx context.Context, sessionID string) (*types.Session, error) {
	sess, err := r.service.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load_session: %w", err)
	}
	r.spawnLocal(sess.ID)
	return sess, nil
}

// ForkSession forks a session at its latest message. Forks are not
// auto-attached to the registry: the caller loads/resumes the fork
// explicitly, matching the Rust original which returns only the new id.
func (r *Registry) ForkSession(ctx context.Context, sourceSessionID string) (*types.Session, error) {
	history, err := r.service.GetMessages(ctx, sourceSessionID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("fork_session: source session has no messages")
	}
	target := history[len(history)-1]
	return r.service.Fork(ctx, sourceSessionID, target.ID)
}

// ResumeSession re-attaches an actor to a session without replaying
// history (spec.md §4.2 resume_session).
func (r *Registry) ResumeSession(ctx context.Context, sessionID string) (*types.Session, error) {
	sess, err := r.service.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume_session: %w", err)
	}
	r.spawnLocal(sess.ID)
	return sess, nil
}

// ListSessions queries the store directly rather than the live actors,
// matching the Rust original's reasoning that the store is authoritative
// for listing (spec.md §4.2 list_sessions).
func (r *Registry) ListSessions(ctx context.Context, directory string) ([]*types.Session, error) {
	return r.service.List(ctx, directory)
}

func (r *Registry) spawnLocal(sessionID string) *Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.sessions[sessionID]; ok && ref.Local != nil {
		return ref.Local
	}
	actor := NewActor(sessionID, r.service.processor, r.service, DefaultAgent())
	r.sessions[sessionID] = localRef(actor)
	return actor
}

// AttachRemoteSession wraps a remote peer's session in a Remote ref, spawns
// a local mesh relay that republishes the peer's events on this process's
// event bus, and registers both (spec.md §4.2 attach_remote_session). This
// is intentionally best-effort: if peerMesh is nil (no mesh configured)
// the session is still tracked locally, just without live event relay.
func (r *Registry) AttachRemoteSession(sessionID, peerLabel string) SessionActorRef {
	var relay *mesh.Relay
	if r.peerMesh != nil {
		relay = r.peerMesh.NewRelay(sessionID, peerLabel)
	}
	ref := SessionActorRef{Remote: &RemoteSession{PeerLabel: peerLabel, Relay: relay}}
	r.mu.Lock()
	r.sessions[sessionID] = ref
	r.mu.Unlock()
	return ref
}
