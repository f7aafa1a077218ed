package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// funnel order; a transition may never land on an earlier rank.
var rank = map[Status]int{
	StatusPending:   0,
	StatusClicked:   1,
	StatusSignedUp:  2,
	StatusActive:    3,
	StatusRewarded:  4,
	StatusExpired:   5,
	StatusCancelled: 5,
}

func TestTransitionsNeverMoveBackwards(t *testing.T) {
	for from, events := range transitions {
		for ev, to := range events {
			if rank[to] < rank[from] {
				t.Fatalf("%s --%s--> %s moves backwards", from, ev, to)
			}
		}
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	for _, s := range []Status{StatusRewarded, StatusExpired, StatusCancelled} {
		assert.True(t, s.Terminal(), s)
		for _, ev := range []Event{EventClick, EventSignup, EventActivate, EventReward, EventExpire, EventCancel} {
			_, ok := Next(s, ev)
			assert.False(t, ok, "%s accepted %s", s, ev)
		}
	}
	for _, s := range []Status{StatusPending, StatusClicked, StatusSignedUp, StatusActive} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestNext(t *testing.T) {
	cases := []struct {
		from Status
		ev   Event
		to   Status
		ok   bool
	}{
		{StatusPending, EventClick, StatusClicked, true},
		{StatusClicked, EventClick, StatusClicked, true},
		{StatusSignedUp, EventClick, StatusSignedUp, true},
		{StatusActive, EventClick, StatusActive, true},
		{StatusPending, EventSignup, StatusSignedUp, true},
		{StatusClicked, EventSignup, StatusSignedUp, true},
		{StatusSignedUp, EventActivate, StatusActive, true},
		{StatusActive, EventReward, StatusRewarded, true},
		{StatusSignedUp, EventExpire, StatusExpired, true},
		{StatusClicked, EventCancel, StatusCancelled, true},
		{StatusPending, EventActivate, "", false},
		{StatusClicked, EventActivate, "", false},
		{StatusActive, EventExpire, "", false},
		{StatusActive, EventCancel, "", false},
		{StatusSignedUp, EventSignup, "", false},
	}
	for _, tc := range cases {
		to, ok := Next(tc.from, tc.ev)
		assert.Equal(t, tc.ok, ok, "%s/%s", tc.from, tc.ev)
		assert.Equal(t, tc.to, to, "%s/%s", tc.from, tc.ev)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusRewarded.Valid())
	assert.False(t, Status("archived").Valid())
	assert.False(t, Status("archived").Terminal())
}

func TestLatestMilestoneAndNotBefore(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clicked := created.Add(time.Hour)
	signup := created.Add(2 * time.Hour)
	r := Referral{CreatedAt: created, LastClickedAt: &clicked, SignupAt: &signup}

	assert.Equal(t, signup, r.LatestMilestone())
	assert.Equal(t, signup, NotBefore(created, r.LatestMilestone()))
	later := signup.Add(time.Minute)
	assert.Equal(t, later, NotBefore(later, r.LatestMilestone()))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC-123", NormalizeCode("  abc-123 "))
	assert.Equal(t, "jane@example.com", NormalizeIdentity(" Jane@Example.COM "))
}
