package service

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values.
const (
	outcomeSuccess            = "success"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeThrottled          = "throttled"
	outcomeInvalid            = "invalid"
	outcomeExpired            = "expired"
	outcomeUserNotFound       = "user_not_found"
	outcomeError              = "error"
)

// Metrics counts authentication outcomes. A nil *Metrics records nothing.
type Metrics struct {
	loginAttempts *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	tokensIssued  prometheus.Counter
}

// NewMetrics creates the auth counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Access/refresh token pairs issued.",
		}),
	}
	reg.MustRegister(m.loginAttempts, m.tokenRefresh, m.tokensIssued)
	return m
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.loginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) refresh(outcome string) {
	if m != nil {
		m.tokenRefresh.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) issued() {
	if m != nil {
		m.tokensIssued.Inc()
	}
}
