package query

// DefaultReward scores every usable response with a flat reward and withholds
// rewards from everything else. Timeouts and denials carry no penalty; the
// EMA decay of unrewarded identities is the penalty.
func DefaultReward(resp Response) (float64, bool) {
	if !resp.OK() || resp.Result == "" {
		return 0, false
	}
	return 0.5, true
}
