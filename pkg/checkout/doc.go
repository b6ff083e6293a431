// Package checkout builds hosted checkout sessions for paid community
// memberships. A session is a client-can-abandon intent: creating one
// grants no subscription or membership state, and only a verified
// completion webhook applied by the subscription state machine commits
// anything. Abandoned sessions expire after a bounded TTL.
package checkout
