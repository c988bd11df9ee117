package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Saves tracks stored checkpoints
	Saves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "es_checkpoint_saves_total",
			Help: "Total number of checkpoints saved",
		},
	)

	// Loads tracks checkpoint lookups by result
	Loads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "es_checkpoint_loads_total",
			Help: "Total number of checkpoint lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// Errors tracks checkpoint operation errors
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "es_checkpoint_errors_total",
			Help: "Total number of checkpoint operation errors",
		},
		[]string{"operation"}, // "get", "save", "delete"
	)
)
