package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/dmap-io/dmap/rpc/common"

	_ "net/http/pprof"
)

// recordRequest records one handled request for a shard: a total counter,
// an error counter and a latency summary, each labeled by shard and
// message type.
func recordRequest(shardID uint64, msgType common.MessageType, start time.Time, failed bool) {
	name := msgType.String()
	metrics.GetOrCreateCounter(
		fmt.Sprintf(`rpc_requests_total{shard="%d",type=%q}`, shardID, name),
	).Inc()
	if failed {
		metrics.GetOrCreateCounter(
			fmt.Sprintf(`rpc_request_errors_total{shard="%d",type=%q}`, shardID, name),
		).Inc()
	}
	metrics.GetOrCreateSummary(
		fmt.Sprintf(`rpc_request_duration_seconds{shard="%d",type=%q}`, shardID, name),
	).UpdateDuration(start)
}

// serveMetrics exposes the Prometheus metrics endpoint together with the
// pprof handlers registered on the default mux. It blocks and is meant to
// run in its own goroutine.
func serveMetrics(endpoint string) {
	http.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	Logger.Infof("Starting metrics server on %s", endpoint)
	if err := http.ListenAndServe(endpoint, nil); err != nil {
		Logger.Errorf("metrics server stopped: %v", err)
	}
}
