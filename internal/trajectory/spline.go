package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/highway-planner/internal/geom"
)

// ErrDegenerateAnchors is returned when anchor points cannot define a curve
// y = f(x): too few of them, non-finite values, or x not strictly increasing.
var ErrDegenerateAnchors = errors.New("trajectory: degenerate anchor points")

// Spline is a natural cubic spline through anchor points in a local frame.
// Only evaluation between the first and last anchor x is meaningful.
type Spline struct {
	nc   interp.NaturalCubic
	minX float64
	maxX float64
}

// FitSpline fits a spline that passes through every anchor.
func FitSpline(anchors []geom.LocalPoint) (*Spline, error) {
	if len(anchors) < 3 {
		return nil, fmt.Errorf("%w: %d anchors, need at least 3", ErrDegenerateAnchors, len(anchors))
	}
	xs := make([]float64, len(anchors))
	ys := make([]float64, len(anchors))
	for i, a := range anchors {
		if !finite(a.X) || !finite(a.Y) {
			return nil, fmt.Errorf("%w: anchor %d is not finite", ErrDegenerateAnchors, i)
		}
		if i > 0 && a.X <= anchors[i-1].X {
			return nil, fmt.Errorf("%w: anchor %d x=%.4f not after x=%.4f", ErrDegenerateAnchors, i, a.X, anchors[i-1].X)
		}
		xs[i], ys[i] = a.X, a.Y
	}

	s := &Spline{minX: xs[0], maxX: xs[len(xs)-1]}
	if err := s.nc.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateAnchors, err)
	}
	return s, nil
}

// At evaluates the spline at x.
func (s *Spline) At(x float64) float64 {
	return s.nc.Predict(x)
}

// Slope evaluates dy/dx at x.
func (s *Spline) Slope(x float64) float64 {
	return s.nc.PredictDerivative(x)
}

// Domain returns the x range covered by the anchors.
func (s *Spline) Domain() (minX, maxX float64) {
	return s.minX, s.maxX
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
