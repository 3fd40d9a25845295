package mesh

import "github.com/agentrt/agentrt/internal/event"

// Relay republishes events from a remote peer's session onto this
// process's local event bus, tagged with the originating peer's label.
// It is the Go counterpart of EventRelayActor in
// original_source/crates/agent/src/agent/remote: that actor is installed
// as an EventForwarder on the remote SessionActor's bus via
// SubscribeEvents; here, ForwardEvent plays the same role as the
// forwarder callback the remote side would invoke.
type Relay struct {
	name      string
	sessionID string
	peerLabel string
}

// Name is the mesh-registered lookup key ("event_relay::<session_id>").
func (r *Relay) Name() string { return r.name }

// PeerLabel identifies which peer this relay's events originated from.
func (r *Relay) PeerLabel() string { return r.peerLabel }

// ForwardEvent republishes an event observed on the remote peer onto the
// local bus so local subscribers (SSE streams, the UI) see remote
// session activity the same way they see local activity.
func (r *Relay) ForwardEvent(evt event.Event) {
	event.PublishSync(evt)
}
