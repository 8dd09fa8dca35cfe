package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DisplayRotation returns the counterclockwise rotation in degrees described
// by a 16.16 fixed point display matrix, in (-180, 180]. A degenerate matrix
// yields NaN.
func DisplayRotation(matrix [9]int32) float64 {
	scale0 := math.Hypot(float64(matrix[0]), float64(matrix[3]))
	scale1 := math.Hypot(float64(matrix[1]), float64(matrix[4]))
	if scale0 == 0 || scale1 == 0 {
		return math.NaN()
	}

	rotation := math.Atan2(float64(matrix[1])/scale1, float64(matrix[0])/scale0) * 180 / math.Pi
	return -rotation
}

// RotationFilter returns the segment that turns pictures carrying matrix
// upright. It reports false when no filter is needed.
func RotationFilter(matrix [9]int32) (string, bool) {
	theta := DisplayRotation(matrix)
	if math.IsNaN(theta) {
		return "", false
	}
	theta = math.Round(theta)
	theta -= 360 * math.Floor(theta/360+0.9/360)

	switch {
	case math.Abs(theta-90) < 1:
		if matrix[3] > 0 {
			return "transpose=cclock_flip", true
		}
		return "transpose=clock", true
	case math.Abs(theta-180) < 1:
		var flips []string
		if matrix[0] < 0 {
			flips = append(flips, "hflip")
		}
		if matrix[4] < 0 {
			flips = append(flips, "vflip")
		}
		if len(flips) == 0 {
			return "", false
		}
		return strings.Join(flips, ","), true
	case math.Abs(theta-270) < 1:
		if matrix[3] < 0 {
			return "transpose=clock_flip", true
		}
		return "transpose=cclock", true
	case math.Abs(theta) > 1:
		return "rotate=" + strconv.FormatFloat(theta*math.Pi/180, 'f', 6, 64), true
	case matrix[4] < 0:
		return "vflip", true
	}
	return "", false
}

// AutoRotate appends the rotation filter for matrix after out and returns the
// port carrying upright pictures. Without a rotation, or when an arbitrary
// angle needs the rotate filter and none is available, out is returned as is.
func (g *Graph) AutoRotate(out *Port, matrix [9]int32) (*Port, error) {
	segment, ok := RotationFilter(matrix)
	if !ok {
		return out, nil
	}
	if strings.HasPrefix(segment, "rotate=") {
		if _, found := Lookup("rotate"); !found {
			g.log().WithField("filter", segment).Warn("rotate filter unavailable, pictures stay unrotated")
			return out, nil
		}
	}
	outputs, err := g.Parse(segment, map[string]*Port{"in": out})
	if err != nil {
		return nil, fmt.Errorf("rotation %q: %w", segment, err)
	}
	return outputs["out"], nil
}
