package rotation

import (
	"math/rand"
	"sort"
	"time"
)

// Select picks at most quota items from the accepted candidates according to
// the route's selection policy. Candidates may arrive in any order.
func Select(policy SelectionPolicy, candidates []Item, quota int, rng *rand.Rand) []Item {
	if quota < 1 || len(candidates) == 0 {
		return nil
	}

	switch policy {
	case SelectDiverse:
		return selectDiverse(candidates, rng)
	default:
		return selectOldestFirst(candidates, quota)
	}
}

// selectOldestFirst orders by timestamp ascending with a deterministic id
// tie-break, then takes the first quota items.
func selectOldestFirst(candidates []Item, quota int) []Item {
	sorted := make([]Item, len(candidates))
	copy(sorted, candidates)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].PostedAt.Equal(sorted[j].PostedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].PostedAt.Before(sorted[j].PostedAt)
	})

	if quota > len(sorted) {
		quota = len(sorted)
	}
	return sorted[:quota]
}

// selectDiverse splits the candidates at the midpoint of their timestamp
// range and picks at most one random item per half, diversifying recency.
// An empty half is skipped without error.
func selectDiverse(candidates []Item, rng *rand.Rand) []Item {
	if len(candidates) == 1 {
		return []Item{candidates[0]}
	}

	oldest, newest := candidates[0].PostedAt, candidates[0].PostedAt
	for _, item := range candidates[1:] {
		if item.PostedAt.Before(oldest) {
			oldest = item.PostedAt
		}
		if item.PostedAt.After(newest) {
			newest = item.PostedAt
		}
	}

	mid := oldest.Add(newest.Sub(oldest) / 2)

	var older, newer []Item
	for _, item := range candidates {
		if item.PostedAt.After(mid) {
			newer = append(newer, item)
		} else {
			older = append(older, item)
		}
	}

	var picked []Item
	for _, bucket := range [][]Item{older, newer} {
		if len(bucket) == 0 {
			continue
		}
		picked = append(picked, bucket[intn(rng, len(bucket))])
	}
	return picked
}

func intn(rng *rand.Rand, n int) int {
	if rng != nil {
		return rng.Intn(n)
	}
	return rand.New(rand.NewSource(time.Now().UnixNano())).Intn(n)
}
