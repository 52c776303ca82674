package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// DirectoryRequestsTotal counts directory API requests by operation.
	DirectoryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "team_sync_directory_requests_total",
		Help: "Total number of directory API requests",
	}, []string{"operation", "status"})

	// DirectoryErrorsTotal counts directory API errors.
	DirectoryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "team_sync_directory_errors_total",
		Help: "Total number of directory API errors",
	}, []string{"operation"})

	// VaultRequestsTotal counts Vault API requests.
	VaultRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "team_sync_vault_requests_total",
		Help: "Total number of Vault API requests",
	}, []string{"operation", "status"})

	// VaultErrorsTotal counts Vault API errors.
	VaultErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "team_sync_vault_errors_total",
		Help: "Total number of Vault API errors",
	}, []string{"operation"})

	// GroupsCreatedTotal counts groups created by reconciliation.
	GroupsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "team_sync_groups_created_total",
		Help: "Total number of groups created",
	})

	// GroupsUpdatedTotal counts attribute updates issued to existing groups.
	GroupsUpdatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "team_sync_groups_updated_total",
		Help: "Total number of group updates issued",
	})

	// GroupsRebuiltTotal counts groups deleted and recreated for a parent change.
	GroupsRebuiltTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "team_sync_groups_rebuilt_total",
		Help: "Total number of groups rebuilt under a new parent",
	})

	// MembersAddedTotal counts membership additions.
	MembersAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "team_sync_members_added_total",
		Help: "Total number of members added to groups",
	})

	// MembersRemovedTotal counts membership removals.
	MembersRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "team_sync_members_removed_total",
		Help: "Total number of members removed from groups",
	})

	// RunsTotal counts completed runs by result.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "team_sync_runs_total",
		Help: "Total number of sync runs",
	}, []string{"result"})

	// RunDuration records the wall time of the last run.
	RunDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "team_sync_run_duration_seconds",
		Help: "Duration of the last sync run in seconds",
	})
)

// Push submits every collected metric to a Prometheus Pushgateway. A sync run
// finishes long before any scraper would come around, so batch runs push
// instead of serving /metrics.
func Push(url, job string) error {
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push()
}
