package emc

import (
	"sync/atomic"

	"github.com/pior/emc/text"
)

// ClientStats contains statistics about client operations.
// A snapshot is safe to take while the client is in use.
//
// For Prometheus integration, expose these as counters, with the verb counts
// under a "verb" label (see internal/promexporter).
type ClientStats struct {
	Sets      uint64 // set, add, replace, append, prepend and cas
	Gets      uint64 // get and gets commands (not keys)
	GetHits   uint64 // keys found by get and gets
	GetMisses uint64 // keys requested but absent
	Deletes   uint64
	Arith     uint64 // incr and decr
	Touches   uint64
	Admin     uint64 // flush_all, stats, version, verbosity and quit

	NoReply    uint64 // commands sent without reading a response
	RoundTrips uint64 // blocking request/response exchanges
	Errors     uint64 // commands that returned an error

	BytesWritten uint64
	BytesRead    uint64
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	stats ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{}
}

func (c *clientStatsCollector) recordCommand(verb text.Verb) {
	switch verb {
	case text.VerbSet, text.VerbAdd, text.VerbReplace, text.VerbAppend, text.VerbPrepend, text.VerbCAS:
		atomic.AddUint64(&c.stats.Sets, 1)
	case text.VerbGet, text.VerbGets:
		atomic.AddUint64(&c.stats.Gets, 1)
	case text.VerbDelete:
		atomic.AddUint64(&c.stats.Deletes, 1)
	case text.VerbIncr, text.VerbDecr:
		atomic.AddUint64(&c.stats.Arith, 1)
	case text.VerbTouch:
		atomic.AddUint64(&c.stats.Touches, 1)
	default:
		atomic.AddUint64(&c.stats.Admin, 1)
	}
}

func (c *clientStatsCollector) recordLookup(requested, found int) {
	atomic.AddUint64(&c.stats.GetHits, uint64(found))
	atomic.AddUint64(&c.stats.GetMisses, uint64(requested-found))
}

func (c *clientStatsCollector) recordNoReply() {
	atomic.AddUint64(&c.stats.NoReply, 1)
}

func (c *clientStatsCollector) recordRoundTrip() {
	atomic.AddUint64(&c.stats.RoundTrips, 1)
}

func (c *clientStatsCollector) recordError() {
	atomic.AddUint64(&c.stats.Errors, 1)
}

func (c *clientStatsCollector) snapshot(s *Stream) ClientStats {
	return ClientStats{
		Sets:         atomic.LoadUint64(&c.stats.Sets),
		Gets:         atomic.LoadUint64(&c.stats.Gets),
		GetHits:      atomic.LoadUint64(&c.stats.GetHits),
		GetMisses:    atomic.LoadUint64(&c.stats.GetMisses),
		Deletes:      atomic.LoadUint64(&c.stats.Deletes),
		Arith:        atomic.LoadUint64(&c.stats.Arith),
		Touches:      atomic.LoadUint64(&c.stats.Touches),
		Admin:        atomic.LoadUint64(&c.stats.Admin),
		NoReply:      atomic.LoadUint64(&c.stats.NoReply),
		RoundTrips:   atomic.LoadUint64(&c.stats.RoundTrips),
		Errors:       atomic.LoadUint64(&c.stats.Errors),
		BytesWritten: s.BytesWritten(),
		BytesRead:    s.BytesRead(),
	}
}

// Add returns the field-wise sum of two snapshots.
func (s ClientStats) Add(o ClientStats) ClientStats {
	return ClientStats{
		Sets:         s.Sets + o.Sets,
		Gets:         s.Gets + o.Gets,
		GetHits:      s.GetHits + o.GetHits,
		GetMisses:    s.GetMisses + o.GetMisses,
		Deletes:      s.Deletes + o.Deletes,
		Arith:        s.Arith + o.Arith,
		Touches:      s.Touches + o.Touches,
		Admin:        s.Admin + o.Admin,
		NoReply:      s.NoReply + o.NoReply,
		RoundTrips:   s.RoundTrips + o.RoundTrips,
		Errors:       s.Errors + o.Errors,
		BytesWritten: s.BytesWritten + o.BytesWritten,
		BytesRead:    s.BytesRead + o.BytesRead,
	}
}

// Sub returns the field-wise difference s - o, for counters taken over an interval.
func (s ClientStats) Sub(o ClientStats) ClientStats {
	return ClientStats{
		Sets:         s.Sets - o.Sets,
		Gets:         s.Gets - o.Gets,
		GetHits:      s.GetHits - o.GetHits,
		GetMisses:    s.GetMisses - o.GetMisses,
		Deletes:      s.Deletes - o.Deletes,
		Arith:        s.Arith - o.Arith,
		Touches:      s.Touches - o.Touches,
		Admin:        s.Admin - o.Admin,
		NoReply:      s.NoReply - o.NoReply,
		RoundTrips:   s.RoundTrips - o.RoundTrips,
		Errors:       s.Errors - o.Errors,
		BytesWritten: s.BytesWritten - o.BytesWritten,
		BytesRead:    s.BytesRead - o.BytesRead,
	}
}
