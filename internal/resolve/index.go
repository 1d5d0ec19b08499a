package resolve

import (
	"time"

	"github.com/oddsmesh/crossarb/internal/domain"
)

type bucketKey struct {
	day    string // UTC day, YYYY-MM-DD; empty for undated markets
	region string
}

const globalRegion = "global"

// CandidateIndex buckets one venue's markets by (UTC day, region) so a
// lookup touches a handful of buckets instead of the whole universe. It is
// built once per scan cycle and treated as immutable while lookups run.
//
// The index is a pruning step only: it must return every true match inside
// the window, at the cost of false positives the resolver rejects later. It
// is never the sole reason a match is accepted.
type CandidateIndex struct {
	buckets map[bucketKey][]domain.Market
	window  time.Duration
}

// NewCandidateIndex builds the index. Markets without a start time land in
// an undated bucket that every lookup includes, because some venues list
// events before scheduling them.
func NewCandidateIndex(markets []domain.Market, window time.Duration) *CandidateIndex {
	if window <= 0 {
		window = 24 * time.Hour
	}
	idx := &CandidateIndex{
		buckets: make(map[bucketKey][]domain.Market),
		window:  window,
	}
	for _, m := range markets {
		key := bucketKey{region: regionOf(m)}
		if !m.StartTime.IsZero() {
			key.day = m.StartTime.UTC().Format("2006-01-02")
		}
		idx.buckets[key] = append(idx.buckets[key], m)
	}
	return idx
}

func regionOf(m domain.Market) string {
	if m.Region == "" {
		return globalRegion
	}
	return m.Region
}

// Lookup returns the candidate set for a source market: the union of the
// day-1, day, and day+1 buckets for the source's region and the global
// region, filtered by the exact time delta, plus all undated markets.
// A source without a start time cannot be windowed and gets no candidates.
func (idx *CandidateIndex) Lookup(src domain.Market) []domain.Market {
	if src.StartTime.IsZero() {
		return nil
	}
	day := src.StartTime.UTC().Truncate(24 * time.Hour)
	region := regionOf(src)

	var keys []bucketKey
	for _, d := range []time.Time{day.AddDate(0, 0, -1), day, day.AddDate(0, 0, 1)} {
		ds := d.Format("2006-01-02")
		keys = append(keys, bucketKey{day: ds, region: region})
		if region != globalRegion {
			keys = append(keys, bucketKey{day: ds, region: globalRegion})
		}
	}
	keys = append(keys, bucketKey{region: region})
	if region != globalRegion {
		keys = append(keys, bucketKey{region: globalRegion})
	}

	var out []domain.Market
	seen := make(map[string]struct{})
	for _, k := range keys {
		for _, cand := range idx.buckets[k] {
			id := string(cand.Venue) + "/" + cand.ExternalID
			if _, dup := seen[id]; dup {
				continue
			}
			if !cand.StartTime.IsZero() {
				delta := src.StartTime.Sub(cand.StartTime)
				if delta < 0 {
					delta = -delta
				}
				if delta > idx.window {
					continue
				}
			}
			seen[id] = struct{}{}
			out = append(out, cand)
		}
	}
	return out
}
