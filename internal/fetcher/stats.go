package fetcher

import (
	"fmt"
	"sync/atomic"
)

// Stats is the run-scoped tally of fetch outcomes. Workers update it with
// atomics; read it only after FetchAll returns.
type Stats struct {
	URLsAttempted  int64
	PagesSaved     int64
	CacheHits      int64
	ProbesRejected int64 // candidate paths dropped: non-2xx or trivial body
	BinaryDropped  int64
	Truncated      int64

	Timeouts     int64
	DNSErrors    int64
	Refused      int64
	TLSErrors    int64
	ClientErrors int64
	ServerErrors int64
	OtherErrors  int64

	EmptyVenues int64 // venues that ended the run with zero pages on disk
}

func (s *Stats) bump(c errClass) {
	switch c {
	case classTimeout:
		atomic.AddInt64(&s.Timeouts, 1)
	case classDNS:
		atomic.AddInt64(&s.DNSErrors, 1)
	case classRefused:
		atomic.AddInt64(&s.Refused, 1)
	case classTLS:
		atomic.AddInt64(&s.TLSErrors, 1)
	case classClient:
		atomic.AddInt64(&s.ClientErrors, 1)
	case classServer:
		atomic.AddInt64(&s.ServerErrors, 1)
	default:
		atomic.AddInt64(&s.OtherErrors, 1)
	}
}

// ErrorTotal sums every error bucket.
func (s *Stats) ErrorTotal() int64 {
	return s.Timeouts + s.DNSErrors + s.Refused + s.TLSErrors +
		s.ClientErrors + s.ServerErrors + s.OtherErrors
}

// Snapshot renders the counters as a flat map for run manifests.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"urls_attempted":  atomic.LoadInt64(&s.URLsAttempted),
		"pages_saved":     atomic.LoadInt64(&s.PagesSaved),
		"cache_hits":      atomic.LoadInt64(&s.CacheHits),
		"probes_rejected": atomic.LoadInt64(&s.ProbesRejected),
		"binary_dropped":  atomic.LoadInt64(&s.BinaryDropped),
		"truncated":       atomic.LoadInt64(&s.Truncated),
		"timeouts":        atomic.LoadInt64(&s.Timeouts),
		"dns_errors":      atomic.LoadInt64(&s.DNSErrors),
		"refused":         atomic.LoadInt64(&s.Refused),
		"tls_errors":      atomic.LoadInt64(&s.TLSErrors),
		"client_errors":   atomic.LoadInt64(&s.ClientErrors),
		"server_errors":   atomic.LoadInt64(&s.ServerErrors),
		"other_errors":    atomic.LoadInt64(&s.OtherErrors),
		"empty_venues":    atomic.LoadInt64(&s.EmptyVenues),
	}
}

func (s *Stats) String() string {
	return fmt.Sprintf("saved=%d cached=%d attempted=%d errors=%d empty_venues=%d",
		s.PagesSaved, s.CacheHits, s.URLsAttempted, s.ErrorTotal(), s.EmptyVenues)
}
