package domain

import "time"

// PendingCleanup records a committed order whose post-commit steps have not
// all succeeded yet. It survives restarts so reconciliation can finish them.
type PendingCleanup struct {
	OrderID          string        `json:"order_id"`
	StagingID        string        `json:"staging_id"`
	UserID           string        `json:"user_id"`
	Source           StagingSource `json:"source"`
	Lines            []LineKey     `json:"lines"`
	NotificationDone bool          `json:"notification_done"`
	MirrorDone       bool          `json:"mirror_done"`
	LocalDone        bool          `json:"local_done"`
	CommittedAt      time.Time     `json:"committed_at"`
}

// Complete reports whether the purchased lines are gone everywhere.
// A missing notification does not hold the entry open.
func (p PendingCleanup) Complete() bool {
	return p.MirrorDone && p.LocalDone
}

// HeldKeys returns the cart identities bought in orders whose local cleanup
// has not finished. Buy-now orders never touched the cart and hold nothing.
func HeldKeys(entries []PendingCleanup) []LineKey {
	var held []LineKey
	for _, e := range entries {
		if e.LocalDone || e.Source == SourceBuyNow {
			continue
		}
		held = append(held, e.Lines...)
	}
	return held
}
