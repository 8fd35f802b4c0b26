// Package metrics exposes Prometheus counters for credential resolution
// and fingerprint tracking.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal        prometheus.Counter
	credentialsReturned prometheus.Counter
	providerSkipsTotal  prometheus.Counter
	fingerprintsTracked prometheus.Counter

	// metricsOnce ensures metrics are only registered once.
	metricsOnce sync.Once

	// metricsRegistered indicates if metrics have been registered.
	metricsRegistered bool
)

// Init initializes the Prometheus metrics. Call once at startup when
// metrics are enabled; all recording helpers are no-ops otherwise.
func Init() {
	metricsOnce.Do(func() {
		lookupsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "credhub_lookups_total",
			Help: "Total number of credential lookups served by the resolution engine",
		})
		credentialsReturned = promauto.NewCounter(prometheus.CounterOpts{
			Name: "credhub_credentials_returned_total",
			Help: "Total number of credentials returned across all lookups",
		})
		providerSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "credhub_provider_skips_total",
			Help: "Total number of providers skipped due to missing optional dependencies",
		})
		fingerprintsTracked = promauto.NewCounter(prometheus.CounterOpts{
			Name: "credhub_fingerprints_tracked_total",
			Help: "Total number of credential usages recorded in the fingerprint ledger",
		})
		metricsRegistered = true
	})
}

// IncLookups records one lookup.
func IncLookups() {
	if metricsRegistered {
		lookupsTotal.Inc()
	}
}

// AddCredentialsReturned records the size of one lookup result.
func AddCredentialsReturned(n int) {
	if metricsRegistered && n > 0 {
		credentialsReturned.Add(float64(n))
	}
}

// IncProviderSkips records a provider skipped during iteration.
func IncProviderSkips() {
	if metricsRegistered {
		providerSkipsTotal.Inc()
	}
}

// IncFingerprintsTracked records one ledger update.
func IncFingerprintsTracked() {
	if metricsRegistered {
		fingerprintsTracked.Inc()
	}
}
