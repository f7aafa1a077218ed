package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ClaimModeOne = "one"
	ClaimModeAll = "all"

	AwardOutcomeCreated  = "created"
	AwardOutcomeExisting = "existing"
	AwardOutcomeConflict = "conflict"
)

// ReferralMetrics counts funnel and ledger activity.
type ReferralMetrics struct {
	funnelEvents         *prometheus.CounterVec
	awards               *prometheus.CounterVec
	awardedMinutes       *prometheus.CounterVec
	claims               *prometheus.CounterVec
	claimedMinutes       prometheus.Counter
	claimedCreditCents   prometheus.Counter
	notificationFailures *prometheus.CounterVec
	rateLimited          prometheus.Counter
}

// ProvideReferral registers the referral counters on the default registry.
func ProvideReferral(cfg Config) *ReferralMetrics {
	return NewReferralMetrics(prometheus.DefaultRegisterer, cfg)
}

func NewReferralMetrics(registerer prometheus.Registerer, cfg Config) *ReferralMetrics {
	labels := constLabels(cfg)

	m := &ReferralMetrics{
		funnelEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "referral_funnel_events_total",
			Help:        "Funnel transitions by event.",
			ConstLabels: labels,
		}, []string{"event"}),
		awards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "referral_rewards_awarded_total",
			Help:        "Activation outcomes by tier and outcome.",
			ConstLabels: labels,
		}, []string{"tier", "outcome"}),
		awardedMinutes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "referral_reward_minutes_awarded_total",
			Help:        "Reward minutes written to the ledger by tier.",
			ConstLabels: labels,
		}, []string{"tier"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "referral_claims_total",
			Help:        "Claims by mode and result.",
			ConstLabels: labels,
		}, []string{"mode", "result"}),
		claimedMinutes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "referral_claimed_minutes_total",
			Help:        "Minutes credited to balances through claims.",
			ConstLabels: labels,
		}),
		claimedCreditCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "referral_claimed_credit_cents_total",
			Help:        "Credit cents credited to balances through claims.",
			ConstLabels: labels,
		}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "referral_notification_failures_total",
			Help:        "Reward notification delivery failures by channel.",
			ConstLabels: labels,
		}, []string{"channel"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "referral_track_rate_limited_total",
			Help:        "Tracking requests rejected by the rate limiter.",
			ConstLabels: labels,
		}),
	}

	m.funnelEvents = register(registerer, m.funnelEvents)
	m.awards = register(registerer, m.awards)
	m.awardedMinutes = register(registerer, m.awardedMinutes)
	m.claims = register(registerer, m.claims)
	m.claimedMinutes = register(registerer, m.claimedMinutes)
	m.claimedCreditCents = register(registerer, m.claimedCreditCents)
	m.notificationFailures = register(registerer, m.notificationFailures)
	m.rateLimited = register(registerer, m.rateLimited)
	return m
}

func (m *ReferralMetrics) IncFunnelEvent(event string) {
	if m == nil {
		return
	}
	m.funnelEvents.WithLabelValues(event).Inc()
}

func (m *ReferralMetrics) ObserveAward(tier, outcome string, minutes int64) {
	if m == nil {
		return
	}
	m.awards.WithLabelValues(tier, outcome).Inc()
	if outcome == AwardOutcomeCreated && minutes > 0 {
		m.awardedMinutes.WithLabelValues(tier).Add(float64(minutes))
	}
}

func (m *ReferralMetrics) ObserveClaim(mode, result string, minutes, creditCents int64) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(mode, result).Inc()
	if minutes > 0 {
		m.claimedMinutes.Add(float64(minutes))
	}
	if creditCents > 0 {
		m.claimedCreditCents.Add(float64(creditCents))
	}
}

func (m *ReferralMetrics) IncNotificationFailure(channel string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(channel).Inc()
}

func (m *ReferralMetrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
