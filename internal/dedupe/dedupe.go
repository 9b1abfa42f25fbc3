// Package dedupe collapses reports of the same physical hazard into a single
// canonical record. Two records describe the same hazard when they share a
// type, lie within the spatial threshold, and were observed within the
// temporal window; matching is transitive.
package dedupe

import (
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

const (
	earthRadiusM = 6371000.0
	metersPerDeg = 111320.0
)

// Merger groups and merges duplicate records.
type Merger struct {
	thresholdM float64
	window     time.Duration
}

// New creates a Merger from the merge configuration.
func New(cfg config.MergeConfig) *Merger {
	return &Merger{thresholdM: cfg.SpatialThresholdM, window: cfg.TemporalWindow}
}

// Merge deduplicates a batch. The input may arrive in any order; the result
// is deterministic and sorted by observation time. Merging is idempotent:
// feeding the output back in returns it unchanged.
func (m *Merger) Merge(records []domain.HazardRecord) []domain.HazardRecord {
	if len(records) < 2 {
		return records
	}

	sorted := make([]domain.HazardRecord, len(records))
	copy(sorted, records)
	sortRecords(sorted)

	uf := newUnionFind(len(sorted))
	for _, pair := range m.candidatePairs(sorted) {
		if m.sameHazard(sorted[pair[0]], sorted[pair[1]]) {
			uf.union(pair[0], pair[1])
		}
	}

	groups := make(map[int][]domain.HazardRecord)
	for i, rec := range sorted {
		root := uf.find(i)
		groups[root] = append(groups[root], rec)
	}

	merged := make([]domain.HazardRecord, 0, len(groups))
	for _, members := range groups {
		merged = append(merged, mergeGroup(members))
	}
	sortRecords(merged)
	return merged
}

// candidatePairs buckets records into grid cells sized to the spatial
// threshold and emits index pairs from each cell's neighborhood. Only pairs
// in the same or adjacent cells can be within the threshold, so the
// all-pairs comparison stays local.
func (m *Merger) candidatePairs(records []domain.HazardRecord) [][2]int {
	cellDeg := m.thresholdM / metersPerDeg

	type cell struct{ lat, lon int }
	grid := make(map[cell][]int)
	for i, rec := range records {
		c := cell{
			lat: int(math.Floor(rec.Lat / cellDeg)),
			lon: int(math.Floor(rec.Lon / cellDeg)),
		}
		grid[c] = append(grid[c], i)
	}

	var pairs [][2]int
	for c, members := range grid {
		// Longitude cells shrink toward the poles, so widen the scan to keep
		// the threshold covered there.
		lonSpan := 1
		latDeg := (float64(c.lat) + 0.5) * cellDeg
		if cos := math.Cos(latDeg * math.Pi / 180); cos > 0.02 {
			lonSpan = int(math.Ceil(1 / cos))
		} else {
			lonSpan = 50
		}

		for dLat := -1; dLat <= 1; dLat++ {
			for dLon := -lonSpan; dLon <= lonSpan; dLon++ {
				other := cell{lat: c.lat + dLat, lon: c.lon + dLon}
				for _, i := range members {
					for _, j := range grid[other] {
						if i < j {
							pairs = append(pairs, [2]int{i, j})
						}
					}
				}
			}
		}
	}
	return pairs
}

func (m *Merger) sameHazard(a, b domain.HazardRecord) bool {
	if a.Type != b.Type {
		return false
	}
	dt := a.ObservedAt.Sub(b.ObservedAt)
	if dt < 0 {
		dt = -dt
	}
	if dt > m.window {
		return false
	}
	return haversineM(a.Lat, a.Lon, b.Lat, b.Lon) <= m.thresholdM
}

// mergeGroup folds a group of duplicates into one record. Members arrive
// sorted by observation time, so the first member is the earliest report and
// the last is the most recent. The earliest report names the hazard: its ID
// stays stable as later reports merge in. Descriptive fields take the most
// recent non-empty value. Provenance is the union of all member sources in
// first-seen order.
func mergeGroup(members []domain.HazardRecord) domain.HazardRecord {
	earliest := members[0]
	latest := members[len(members)-1]

	merged := latest
	merged.ID = earliest.ID
	merged.ProcessedAt = domain.Now()

	// Walk backwards for the most recent non-empty value of each field.
	for i := len(members) - 1; i >= 0; i-- {
		rec := members[i]
		if merged.Description == "" {
			merged.Description = rec.Description
		}
		if merged.Address == "" {
			merged.Address = rec.Address
		}
		if merged.Severity == "" {
			merged.Severity = rec.Severity
		}
		if merged.Magnitude == 0 {
			merged.Magnitude = rec.Magnitude
		}
	}

	merged.Sources = nil
	seen := make(map[string]bool)
	for _, rec := range members {
		for _, src := range rec.Sources {
			if !seen[src] {
				seen[src] = true
				merged.Sources = append(merged.Sources, src)
			}
		}
	}
	return merged
}

func sortRecords(records []domain.HazardRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ObservedAt.Equal(records[j].ObservedAt) {
			return records[i].ObservedAt.Before(records[j].ObservedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// haversineM returns the great-circle distance in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	const toRad = math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union attaches the larger root to the smaller so the earliest-sorted member
// of a group always ends up as its root.
func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	if ri < rj {
		u.parent[rj] = ri
	} else {
		u.parent[ri] = rj
	}
}
