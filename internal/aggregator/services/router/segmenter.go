package router

import "github.com/hxuan190/evm-quote-engine/internal/domain"

// SegmentRoute splits a route into maximal runs of pools sharing a variant, left to right.
// Concatenating the segments' pools reproduces the route.
func SegmentRoute(route domain.Route) []domain.Segment {
	pools := route.Pools()
	if len(pools) == 0 {
		return nil
	}

	segments := make([]domain.Segment, 0, 2)
	start := 0
	for i := 1; i <= len(pools); i++ {
		if i < len(pools) && pools[i].Variant == pools[start].Variant {
			continue
		}
		segments = append(segments, domain.Segment{
			Variant: pools[start].Variant,
			Pools:   pools[start:i:i],
		})
		start = i
	}
	return segments
}
