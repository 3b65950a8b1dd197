package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratweave_events_published_total",
		Help: "Total number of events delivered to the bus.",
	})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratweave_events_dropped_total",
		Help: "Total number of events dropped after exhausting the retry budget.",
	})
)
