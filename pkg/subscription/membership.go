package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Membership is the derived access projection per (buyer, community) pair.
// It is mutated only by the subscription service, atomically with the
// subscription write, and read by the access gate on every gated request.
type Membership struct {
	BuyerID     uuid.UUID
	CommunityID uuid.UUID
	Active      bool
	// ExpiresAt bounds access for past-due subscriptions: the grace window
	// end. Nil means no deadline (fully paid) or no access at all.
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

// Grants reports whether the membership entitles access at the given instant.
func (m *Membership) Grants(now time.Time) bool {
	if !m.Active {
		return false
	}
	if m.ExpiresAt != nil && now.After(*m.ExpiresAt) {
		return false
	}
	return true
}

// project derives the membership row from a subscription state. Active
// subscriptions grant open-ended access; past-due ones keep access until the
// grace window ends; everything else revokes it.
func project(sub *Subscription, grace time.Duration, now time.Time) *Membership {
	m := &Membership{
		BuyerID:     sub.BuyerID,
		CommunityID: sub.CommunityID,
		UpdatedAt:   now,
	}
	switch sub.Status {
	case StatusActive:
		m.Active = true
	case StatusPastDue:
		deadline := sub.StatusChangedAt.Add(grace)
		m.Active = true
		m.ExpiresAt = &deadline
	}
	return m
}
