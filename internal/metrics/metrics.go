// Package metrics registers the Prometheus instruments exported on
// /metrics. Counters are package-level and registered via promauto so
// any layer can increment them without plumbing a registry around.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlaylistsGenerated counts published playlists.
	PlaylistsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "m3u_playlists_generated_total",
		Help: "Number of playlists published",
	})

	// PlaylistHits counts raw playlist downloads.
	PlaylistHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "m3u_playlist_hits_total",
		Help: "Number of raw playlist downloads served",
	})

	// RefreshTotal counts refresh attempts by outcome ("ok" or "error").
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "m3u_refresh_total",
		Help: "Number of playlist refresh attempts by outcome",
	}, []string{"outcome"})

	// RefreshDuration observes the wall time of a refresh attempt,
	// fetch and rule application included.
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "m3u_refresh_duration_seconds",
		Help:    "Duration of playlist refresh attempts in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// CheckTotal counts availability probes by resulting status.
	CheckTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "m3u_check_total",
		Help: "Number of availability checks by resulting status",
	}, []string{"status"})
)
