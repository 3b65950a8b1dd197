package swaps

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	swapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratweave_swaps_total",
		Help: "Total number of swap operations by outcome.",
	}, []string{"outcome"})

	swapDowntime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stratweave_swap_downtime_milliseconds",
		Help:    "Measured in-transaction downtime of completed swaps.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)
