package progress

// Segment is a half-open watched interval [Start, End) in video seconds.
type Segment struct {
	Start float64 `json:"s"`
	End   float64 `json:"e"`
}

// Merge inserts seg into an ordered list of disjoint segments and returns a
// new ordered disjoint list. Touching or overlapping segments collapse into
// one. A degenerate segment (End <= Start) leaves the list unchanged.
func Merge(list []Segment, seg Segment) []Segment {
	if seg.End <= seg.Start {
		return list
	}

	out := make([]Segment, 0, len(list)+1)
	inserted := false
	for _, cur := range list {
		if !inserted && seg.Start <= cur.Start {
			out = appendMerged(out, seg)
			inserted = true
		}
		out = appendMerged(out, cur)
	}
	if !inserted {
		out = appendMerged(out, seg)
	}
	return out
}

// MergeAll folds every segment of extra into list.
func MergeAll(list []Segment, extra []Segment) []Segment {
	out := list
	for _, seg := range extra {
		out = Merge(out, seg)
	}
	return out
}

// SumDistinct returns the total non-overlapping watched duration.
func SumDistinct(list []Segment) float64 {
	var sum float64
	for _, seg := range list {
		if seg.End > seg.Start {
			sum += seg.End - seg.Start
		}
	}
	return sum
}

func appendMerged(out []Segment, seg Segment) []Segment {
	n := len(out)
	if n == 0 || seg.Start > out[n-1].End {
		return append(out, seg)
	}
	if seg.End > out[n-1].End {
		out[n-1].End = seg.End
	}
	return out
}
