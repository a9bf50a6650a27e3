package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auction",
	Name:      "requests_total",
	Help:      "Total number of protocol requests seen by the server, by action and outcome.",
}, []string{"action", "result"})

var RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auction",
	Name:      "registrations_total",
	Help:      "Total number of bidder registrations.",
}, []string{"result"})

var BidsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auction",
	Name:      "bids_submitted_total",
	Help:      "Total number of bids submitted, by kind (direct, proxy) and result.",
}, []string{"kind", "result"})

var ProxyCeilingsSetTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auction",
	Name:      "proxy_ceilings_set_total",
	Help:      "Total number of PROXY_BID requests, by result.",
}, []string{"result"})

var WinnerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auction",
	Name:      "winner_requests_total",
	Help:      "Total number of winner computations, by result.",
}, []string{"result"})

var ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auction",
	Name:      "connections_total",
	Help:      "Total number of client connections handled, by outcome.",
}, []string{"result"})

var ConnectionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "auction",
	Name:      "connections_in_flight",
	Help:      "Number of client connections currently being served.",
})

var TransportTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auction",
	Name:      "transport_timeouts_total",
	Help:      "Connections dropped because a read or write stalled past its deadline.",
}, []string{"op"})
