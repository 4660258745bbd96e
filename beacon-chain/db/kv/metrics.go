package kv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksSavedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_blocks_saved_total",
		Help: "Number of blocks appended to persistent storage",
	}, []string{
		"finality",
	})
	statesSavedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_archival_states_saved_total",
		Help: "Number of archival state snapshots written",
	})
	blobsSavedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_blob_sidecars_saved_total",
		Help: "Number of blob sidecars appended to persistent storage",
	})
	blobsPrunedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_blob_sidecars_pruned_total",
		Help: "Number of blob sidecars removed by pruning",
	})
	checkpointHeadSlotGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storage_checkpoint_head_slot",
		Help: "Head slot recorded by the latest state checkpoint",
	})
)
