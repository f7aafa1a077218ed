package domain

type Status string

const (
	StatusPending   Status = "pending"
	StatusClicked   Status = "clicked"
	StatusSignedUp  Status = "signed_up"
	StatusActive    Status = "active"
	StatusRewarded  Status = "rewarded"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

type Event string

const (
	EventClick    Event = "click"
	EventSignup   Event = "signup"
	EventActivate Event = "activate"
	EventReward   Event = "reward"
	EventExpire   Event = "expire"
	EventCancel   Event = "cancel"
)

// transitions is the whole funnel. A (state, event) pair missing here is rejected.
// No entry leads back to an earlier state.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventClick:  StatusClicked,
		EventSignup: StatusSignedUp,
		EventExpire: StatusExpired,
		EventCancel: StatusCancelled,
	},
	StatusClicked: {
		EventClick:  StatusClicked,
		EventSignup: StatusSignedUp,
		EventExpire: StatusExpired,
		EventCancel: StatusCancelled,
	},
	StatusSignedUp: {
		EventClick:    StatusSignedUp,
		EventActivate: StatusActive,
		EventExpire:   StatusExpired,
		EventCancel:   StatusCancelled,
	},
	StatusActive: {
		EventClick:  StatusActive,
		EventReward: StatusRewarded,
	},
}

// Next resolves the state reached from s on ev.
func Next(s Status, ev Event) (Status, bool) {
	next, ok := transitions[s][ev]
	return next, ok
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusClicked, StatusSignedUp, StatusActive,
		StatusRewarded, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Terminal states accept no events.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Closed reports the side exits of the funnel.
func (s Status) Closed() bool {
	return s == StatusExpired || s == StatusCancelled
}

// Converted reports whether the referred party has reached signup or beyond.
func (s Status) Converted() bool {
	return s == StatusSignedUp || s == StatusActive || s == StatusRewarded
}

// PreSignup reports whether clicks still move last_clicked_at.
func (s Status) PreSignup() bool {
	return s == StatusPending || s == StatusClicked
}
