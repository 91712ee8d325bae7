package coordinate

import "fmt"

// relayTopic names the Bus topic a given actor id's relay traffic flows
// over. Client-to-leader and leader-to-client messages share one topic;
// every subscriber on it (the leader, and every follower's
// RelayConnection) sees every frame and filters by RelayMessage.ConnID,
// the same broadcast-and-filter shape broadcastLocked uses for events.
func relayTopic(actorID string) string { return fmt.Sprintf("relay:%s", actorID) }

// RelayConnection is what a follower node holds in place of a live
// actor.Instance for a connection whose actor this node does not own
// (spec §4.3 "Message relay"). It persists nothing locally: every inbound
// client frame is published to the leader, and outbound frames published
// back are forwarded to the client by whoever owns this RelayConnection
// (the connection driver).
type RelayConnection struct {
	ActorID   string
	ConnID    string
	ConnToken string
	bus       *Bus
	inbox     Subscriber
}

// NewRelayConnection subscribes to the actor's relay topic so outbound
// (leader -> client) frames addressed to this connection can be read from
// Inbox.
func NewRelayConnection(bus *Bus, actorID, connID, connToken string) *RelayConnection {
	rc := &RelayConnection{
		ActorID:   actorID,
		ConnID:    connID,
		ConnToken: connToken,
		bus:       bus,
		inbox:     make(Subscriber, 32),
	}
	bus.Subscribe(relayTopic(actorID), rc.inbox)
	return rc
}

// Inbox is where leader-published frames addressed back to this
// connection arrive. The connection driver reads it and forwards
// messages whose ConnID matches rc.ConnID to the actual client socket.
func (rc *RelayConnection) Inbox() <-chan RelayMessage { return rc.inbox }

// Publish sends an inbound client frame to the leader.
func (rc *RelayConnection) Publish(payload []byte) {
	rc.bus.Publish(relayTopic(rc.ActorID), RelayMessage{
		ActorID:   rc.ActorID,
		ConnID:    rc.ConnID,
		ConnToken: rc.ConnToken,
		Payload:   payload,
	})
}

// Close tears down the relay subscription. Called when the client
// disconnects or when leader failover requires clients to reconnect.
func (rc *RelayConnection) Close() {
	rc.bus.Unsubscribe(relayTopic(rc.ActorID), rc.inbox)
}

// LeaderSubscription is the leader-side counterpart: it receives every
// inbound frame relayed by any follower for actorID, and can publish
// replies back out (tagged by ConnID so followers can route them to the
// right client).
type LeaderSubscription struct {
	actorID string
	bus     *Bus
	inbox   Subscriber
}

// NewLeaderSubscription subscribes the leader to actorID's relay topic.
func NewLeaderSubscription(bus *Bus, actorID string) *LeaderSubscription {
	ls := &LeaderSubscription{actorID: actorID, bus: bus, inbox: make(Subscriber, 128)}
	bus.Subscribe(relayTopic(actorID), ls.inbox)
	return ls
}

// Inbound is every frame relayed in by any follower for this actor.
func (ls *LeaderSubscription) Inbound() <-chan RelayMessage { return ls.inbox }

// Reply publishes an outbound frame tagged to connID, delivered to
// whichever follower holds that RelayConnection.
func (ls *LeaderSubscription) Reply(connID, connToken string, payload []byte) {
	ls.bus.Publish(relayTopic(ls.actorID), RelayMessage{
		ActorID:   ls.actorID,
		ConnID:    connID,
		ConnToken: connToken,
		Payload:   payload,
	})
}

// Close tears down the leader's subscription, e.g. on failover.
func (ls *LeaderSubscription) Close() {
	ls.bus.Unsubscribe(relayTopic(ls.actorID), ls.inbox)
}
