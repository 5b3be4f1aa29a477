package segment

import "time"

// JoinPlan says whether the last two segments should become one file.
type JoinPlan struct {
	ShouldJoin     bool
	MergedDuration float64 // seconds; zero when fewer than two segments exist
}

// PlanJoin decides whether the trailing remainder segment gets merged into
// its predecessor. Only the last two segments are considered, and they are
// joined only if the result stays strictly below hardCap.
func PlanJoin(segments []Segment, hardCap time.Duration) JoinPlan {
	if len(segments) < 2 {
		return JoinPlan{}
	}
	last := segments[len(segments)-1].Duration
	secondLast := segments[len(segments)-2].Duration
	merged := secondLast + last

	return JoinPlan{
		ShouldJoin:     merged < hardCap.Seconds(),
		MergedDuration: merged,
	}
}
