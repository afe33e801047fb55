package roadmap

// Lane geometry for the three same-direction lanes of the simulator
// highway. Lane 0 is innermost; d grows outward.
const (
	LaneWidth = 4.0
	LaneCount = 3
)

// LaneCenter returns the d offset of the center of lane.
func LaneCenter(lane int) float64 {
	return LaneWidth/2 + LaneWidth*float64(lane)
}

// LaneOf buckets an absolute d offset into a lane index. Anything past the
// second lane boundary counts as the outermost lane.
func LaneOf(d float64) int {
	switch {
	case d < LaneWidth:
		return 0
	case d < 2*LaneWidth:
		return 1
	default:
		return LaneCount - 1
	}
}

// ValidLane reports whether lane is one of the highway lanes.
func ValidLane(lane int) bool {
	return lane >= 0 && lane < LaneCount
}
