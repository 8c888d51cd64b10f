// Package geometry provides the axis-aligned bounding box primitives shared by
// the grouping, trajectory and track building components.
package geometry

import "math"

// Box is an axis-aligned bounding box in pixel coordinates, anchored at its
// top-left corner.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns the box area, 0 for degenerate boxes.
func (b Box) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Valid reports whether the box has positive area.
func (b Box) Valid() bool {
	return b.W > 0 && b.H > 0
}

// Center returns the centroid of the box.
func (b Box) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Contains reports whether the point (x, y) lies inside the box.
func (b Box) Contains(x, y float64) bool {
	return x >= b.X && x <= b.X+b.W && y >= b.Y && y <= b.Y+b.H
}

// IoU computes intersection-over-union for two boxes. Non-overlapping or
// degenerate inputs yield 0. The result is always in [0, 1].
func IoU(a, b Box) float64 {
	areaA := a.Area()
	areaB := b.Area()
	if areaA == 0 || areaB == 0 {
		return 0
	}

	ix := math.Max(a.X, b.X)
	iy := math.Max(a.Y, b.Y)
	ix2 := math.Min(a.X+a.W, b.X+b.W)
	iy2 := math.Min(a.Y+a.H, b.Y+b.H)

	if ix2 <= ix || iy2 <= iy {
		return 0
	}

	intersection := (ix2 - ix) * (iy2 - iy)
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// CentroidDistance returns the euclidean distance between the centroids of two
// boxes.
func CentroidDistance(a, b Box) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}

// AvgDimension returns the mean of width and height across both boxes. It is
// the length scale used by the grouper's centroid-distance fallback.
func AvgDimension(a, b Box) float64 {
	return (a.W + a.H + b.W + b.H) / 4
}
