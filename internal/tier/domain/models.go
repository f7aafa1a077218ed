package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"
)

var (
	ErrEmptyTable        = errors.New("empty_tier_table")
	ErrInvalidTier       = errors.New("invalid_tier")
	ErrDuplicateLevel    = errors.New("duplicate_tier_level")
	ErrThresholdNotRaise = errors.New("tier_threshold_not_increasing")
)

// Definition is one row of the tier table.
type Definition struct {
	Level             int    `mapstructure:"level" json:"level"`
	Name              string `mapstructure:"name" json:"name"`
	ReferralsRequired int64  `mapstructure:"referrals_required" json:"referrals_required"`
	RewardMinutes     int64  `mapstructure:"reward_minutes" json:"reward_minutes"`
	RewardCreditCents int64  `mapstructure:"reward_credit_cents" json:"reward_credit_cents"`
}

// Code is the stable identifier stored on statistics rows.
func (d Definition) Code() string {
	return slug.Make(d.Name)
}

// Table is an immutable, level-ordered tier table.
type Table struct {
	tiers []Definition
}

// Progress describes where a beneficiary sits relative to the tier ladder.
type Progress struct {
	Count           int64       `json:"count"`
	Current         Definition  `json:"current"`
	Next            *Definition `json:"next,omitempty"`
	ReferralsToNext int64       `json:"referrals_to_next"`
}

func DefaultDefinitions() []Definition {
	return []Definition{
		{Level: 1, Name: "Bronze", ReferralsRequired: 0, RewardMinutes: 60, RewardCreditCents: 0},
		{Level: 2, Name: "Silver", ReferralsRequired: 2, RewardMinutes: 120, RewardCreditCents: 500},
		{Level: 3, Name: "Gold", ReferralsRequired: 5, RewardMinutes: 240, RewardCreditCents: 1000},
		{Level: 4, Name: "Platinum", ReferralsRequired: 10, RewardMinutes: 480, RewardCreditCents: 2500},
	}
}

func DefaultTable() Table {
	table, err := NewTable(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return table
}

// NewTable validates and orders defs by level.
func NewTable(defs []Definition) (Table, error) {
	if len(defs) == 0 {
		return Table{}, ErrEmptyTable
	}

	tiers := make([]Definition, len(defs))
	copy(tiers, defs)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Level < tiers[j].Level })

	for i, tier := range tiers {
		tier.Name = strings.TrimSpace(tier.Name)
		tiers[i] = tier
		if tier.Name == "" || tier.Level <= 0 || tier.ReferralsRequired < 0 ||
			tier.RewardMinutes < 0 || tier.RewardCreditCents < 0 {
			return Table{}, fmt.Errorf("%w: level %d", ErrInvalidTier, tier.Level)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if prev.Level == tier.Level {
			return Table{}, fmt.Errorf("%w: level %d", ErrDuplicateLevel, tier.Level)
		}
		if tier.ReferralsRequired <= prev.ReferralsRequired {
			return Table{}, fmt.Errorf("%w: level %d requires %d, level %d requires %d",
				ErrThresholdNotRaise, prev.Level, prev.ReferralsRequired, tier.Level, tier.ReferralsRequired)
		}
	}

	return Table{tiers: tiers}, nil
}

// TierFor returns the highest tier whose threshold is met by count. Counts
// below the first threshold fall back to the lowest tier.
func (t Table) TierFor(count int64) Definition {
	if len(t.tiers) == 0 {
		return Definition{}
	}
	current := t.tiers[0]
	for _, tier := range t.tiers[1:] {
		if tier.ReferralsRequired > count {
			break
		}
		current = tier
	}
	return current
}

// Next returns the first tier whose threshold is above count.
func (t Table) Next(count int64) (Definition, bool) {
	for _, tier := range t.tiers {
		if tier.ReferralsRequired > count {
			return tier, true
		}
	}
	return Definition{}, false
}

func (t Table) Progress(count int64) Progress {
	if count < 0 {
		count = 0
	}
	progress := Progress{
		Count:   count,
		Current: t.TierFor(count),
	}
	if next, ok := t.Next(count); ok {
		progress.Next = &next
		progress.ReferralsToNext = next.ReferralsRequired - count
	}
	return progress
}

func (t Table) Lowest() Definition {
	if len(t.tiers) == 0 {
		return Definition{}
	}
	return t.tiers[0]
}

func (t Table) Definitions() []Definition {
	out := make([]Definition, len(t.tiers))
	copy(out, t.tiers)
	return out
}

func (t Table) Len() int {
	return len(t.tiers)
}

// Provider hands out the tier table currently in effect.
type Provider interface {
	Table() Table
}

type staticProvider struct {
	table Table
}

func NewStaticProvider(table Table) Provider {
	return staticProvider{table: table}
}

func (p staticProvider) Table() Table {
	return p.table
}
