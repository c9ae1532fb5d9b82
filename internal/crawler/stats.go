package crawler

import "sync/atomic"

// Stats tracks crawl progress counters.
type Stats struct {
	SeedsCrawled        atomic.Int64
	BooksPersisted      atomic.Int64
	PlaceholdersCreated atomic.Int64
	EdgesLinked         atomic.Int64
	DedupHits           atomic.Int64
	RankUpgrades        atomic.Int64
	FetchFailures       atomic.Int64
}

// Snapshot is a plain-value copy of the counters, suitable for logging.
type Snapshot struct {
	SeedsCrawled        int64
	BooksPersisted      int64
	PlaceholdersCreated int64
	EdgesLinked         int64
	DedupHits           int64
	RankUpgrades        int64
	FetchFailures       int64
}

// Snapshot reads all counters at once.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		SeedsCrawled:        s.SeedsCrawled.Load(),
		BooksPersisted:      s.BooksPersisted.Load(),
		PlaceholdersCreated: s.PlaceholdersCreated.Load(),
		EdgesLinked:         s.EdgesLinked.Load(),
		DedupHits:           s.DedupHits.Load(),
		RankUpgrades:        s.RankUpgrades.Load(),
		FetchFailures:       s.FetchFailures.Load(),
	}
}
