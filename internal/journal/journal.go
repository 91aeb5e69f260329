package journal

// Journal owns the observation and report collections for one daemon.
type Journal struct {
	Observations Collection[Observation]
	Reports      Collection[Report]
}

// New returns an empty journal.
func New() *Journal {
	return &Journal{}
}

// Recent returns up to n of the most recent observations other than
// excludeID, newest first.
func (j *Journal) Recent(n int, excludeID string) []Observation {
	if n <= 0 {
		return nil
	}
	var out []Observation
	for _, o := range j.Observations.Snapshot() {
		if o.ID == excludeID {
			continue
		}
		out = append(out, o)
		if len(out) == n {
			break
		}
	}
	return out
}

// Page returns the page-th (1-based) window of size items and the total
// count. A non-positive size returns everything.
func Page[T any](items []T, page, size int) ([]T, int) {
	total := len(items)
	if size <= 0 {
		return items, total
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= total {
		return []T{}, total
	}
	end := start + size
	if end > total {
		end = total
	}
	return items[start:end], total
}
