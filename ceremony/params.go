package ceremony

import "golang.org/x/xerrors"

// ThresholdParameters is the (n, t) pair of a ceremony: n shares exist and
// strictly more than t of them are needed to produce a signature.
type ThresholdParameters struct {
	ShareCount uint32
	Threshold  uint32
}

// DefaultThresholdParameters derives the byzantine-majority threshold
// t = ceil(2n/3) - 1 used in production. Tests may build explicit parameters
// instead.
func DefaultThresholdParameters(shareCount int) ThresholdParameters {
	n := uint32(shareCount)

	return ThresholdParameters{
		ShareCount: n,
		Threshold:  (2*n+2)/3 - 1,
	}
}

// NewThresholdParameters validates an explicit (n, t) pair.
func NewThresholdParameters(shareCount, threshold uint32) (ThresholdParameters, error) {
	if threshold >= shareCount {
		return ThresholdParameters{}, xerrors.Errorf(
			"threshold %d must be smaller than share count %d", threshold, shareCount)
	}

	return ThresholdParameters{ShareCount: shareCount, Threshold: threshold}, nil
}
