package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var BiddersRegistered = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "auction",
	Name:      "bidders_registered",
	Help:      "Number of registered bidders in the ledger.",
})

var BidsRecorded = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "auction",
	Name:      "bids_recorded",
	Help:      "Number of bidders holding a current bid in the ledger.",
})

var ProxyCeilingsRecorded = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "auction",
	Name:      "proxy_ceilings_recorded",
	Help:      "Number of bidders with a recorded proxy ceiling.",
})

var HighestBidAmount = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "auction",
	Name:      "highest_bid_amount",
	Help:      "Current highest bid amount, 0 when no bids are recorded.",
})
