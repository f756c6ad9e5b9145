// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every collector below is registered with.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	PagesStored = factory.NewCounter(prometheus.CounterOpts{
		Name: "sitescore_pages_stored_total",
		Help: "Pages written to project databases.",
	})

	AuditsFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_audits_finished_total",
		Help: "Audits that reached a terminal status.",
	}, []string{"status"})

	IssuesGenerated = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_issues_generated_total",
		Help: "Issues written by issue derivation.",
	}, []string{"severity"})

	LinkCacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_link_cache_lookups_total",
		Help: "Link cache lookups by result: hit, miss or expired.",
	}, []string{"result"})

	LinkChecks = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_link_checks_total",
		Help: "Link targets probed by outcome: ok, broken or error.",
	}, []string{"outcome"})

	MigratedFiles = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_migrated_files_total",
		Help: "Legacy files processed by migration.",
	}, []string{"kind", "outcome"})

	RuleEvaluations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_rule_evaluations_total",
		Help: "Rule evaluations by outcome status.",
	}, []string{"status"})

	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_http_requests_total",
		Help: "Read API requests.",
	}, []string{"method", "route", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
