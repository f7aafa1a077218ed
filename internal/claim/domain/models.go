package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ModeOne = "one"
	ModeAll = "all"
)

// Result describes what a claim moved into the balance. An empty ClaimAll
// has Count 0 and is still a success.
type Result struct {
	Mode        string         `json:"mode"`
	EntryIDs    []snowflake.ID `json:"entry_ids"`
	Count       int            `json:"count"`
	Minutes     int64          `json:"minutes"`
	CreditCents int64          `json:"credit_cents"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty"`
	// CreditReference is the balance credit reference for this claim.
	CreditReference string `json:"credit_reference,omitempty"`
}
