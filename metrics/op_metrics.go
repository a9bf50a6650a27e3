package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var opWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "auction",
	Name:      "op_wait_seconds",
	Help:      "Time spent in blocking calls to e.g. the ledger, signature verification, etc.",
}, []string{"op"})

func OpWait(op string, took time.Duration) {
	opWaitSeconds.WithLabelValues(op).Observe(took.Seconds())
}
