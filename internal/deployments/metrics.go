package deployments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stratweave_deployments_total",
	Help: "Total number of deployment operations by environment and outcome.",
}, []string{"environment", "outcome"})
