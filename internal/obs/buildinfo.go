package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo: gauge со значением 1 и метками версии/коммита/идентификатора узла.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gestix_build_info",
			Help: "GestiX API build information.",
		},
		[]string{"version", "commit", "server_id"},
	)
)

// InitBuildInfo registers build_info once and publishes the running version.
// serverID is the node identifier stamped on every audit entry.
func InitBuildInfo(version, commit, serverID string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit, serverID).Set(1)
}
