package router

import "sync/atomic"

// RoutingStats is a point-in-time snapshot of router counters.
type RoutingStats struct {
	Published         uint64 `json:"published"`
	Delivered         uint64 `json:"delivered"`
	Failed            uint64 `json:"failed"`
	Retried           uint64 `json:"retried"`
	FilteredOut       uint64 `json:"filtered_out"`
	CircuitRejections uint64 `json:"circuit_rejections"`
	Duplicates        uint64 `json:"duplicates"`
	Scheduled         uint64 `json:"scheduled"`
	Responses         uint64 `json:"responses"`
}

type statsCounters struct {
	published         atomic.Uint64
	delivered         atomic.Uint64
	failed            atomic.Uint64
	retried           atomic.Uint64
	filteredOut       atomic.Uint64
	circuitRejections atomic.Uint64
	duplicates        atomic.Uint64
	scheduled         atomic.Uint64
	responses         atomic.Uint64
}

func (s *statsCounters) snapshot() RoutingStats {
	return RoutingStats{
		Published:         s.published.Load(),
		Delivered:         s.delivered.Load(),
		Failed:            s.failed.Load(),
		Retried:           s.retried.Load(),
		FilteredOut:       s.filteredOut.Load(),
		CircuitRejections: s.circuitRejections.Load(),
		Duplicates:        s.duplicates.Load(),
		Scheduled:         s.scheduled.Load(),
		Responses:         s.responses.Load(),
	}
}
