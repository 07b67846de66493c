package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Signed tokens minted, by kind.",
	}, []string{"kind"})

	refreshRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refresh_rejected_total",
		Help: "Refresh attempts rejected, by reason.",
	}, []string{"reason"})

	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts, by outcome.",
	}, []string{"outcome"})

	blacklistInserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_blacklist_inserts_total",
		Help: "Access tokens blacklisted on logout.",
	})
)

func CountTokenIssued(kind string)     { tokensIssued.WithLabelValues(kind).Inc() }
func CountRefreshRejected(reason string) { refreshRejected.WithLabelValues(reason).Inc() }
func CountLogin(outcome string)        { logins.WithLabelValues(outcome).Inc() }
func CountBlacklistInsert()            { blacklistInserts.Inc() }

// MetricsHandler serves the default prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
