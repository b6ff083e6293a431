// Package webhook reconciles at-least-once, possibly out-of-order, possibly
// concurrent gateway deliveries into at-most-once side effect application.
//
// The pipeline per delivery is verify -> claim -> dispatch -> record. The
// dedup ledger's unique external event id is the serialization point:
// concurrent duplicates lose the pending insert, replays of settled events
// acknowledge without re-invoking any handler, and failed or abandoned
// events are reclaimed exactly once per redelivery. A pending record whose
// owner died without settling is abandoned once it outlives the processing
// deadline, so a crash never wedges an event id. Signature verification and
// dedup lookup run concurrently across deliveries; only the handler side
// effects are serialized, and only per subscription, by the layer below.
package webhook
