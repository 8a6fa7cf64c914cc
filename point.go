package reveal

import "math"

// Point represents a screen position or a 2D offset.
type Point struct {
	X, Y float64
}

// Pt is a convenience function to create a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the sum of two points (vector addition).
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the difference of two points (vector subtraction).
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Mul returns the point scaled by a scalar.
func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// IsZero reports whether both coordinates are zero.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Size is a width/height pair in screen points.
type Size struct {
	W, H float64
}

// Sz is a convenience function to create a Size.
func Sz(w, h float64) Size {
	return Size{W: w, H: h}
}

// Square returns a Size with equal sides.
func Square(side float64) Size {
	return Size{W: side, H: side}
}

// Mul returns the size scaled by a scalar.
func (s Size) Mul(f float64) Size {
	return Size{W: s.W * f, H: s.H * f}
}

// IsZero reports whether both dimensions are zero.
func (s Size) IsZero() bool {
	return s.W == 0 && s.H == 0
}

// Center returns the midpoint of a rectangle of this size anchored at the
// origin.
func (s Size) Center() Point {
	return Point{X: s.W / 2, Y: s.H / 2}
}

// clamp limits v to [lo, hi]. If lo > hi the midpoint is returned, which
// keeps an oversized box centered instead of pinned to one edge.
func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(v, hi))
}

// ClampCenter returns p moved so that a box of size box centered on it lies
// within a screen of size screen.
func ClampCenter(p Point, box, screen Size) Point {
	hw, hh := box.W/2, box.H/2
	return Point{
		X: clamp(p.X, hw, screen.W-hw),
		Y: clamp(p.Y, hh, screen.H-hh),
	}
}

// PanLimit returns the largest offset, per axis, by which content of size
// content magnified by zoom may be dragged on a screen of size screen. The
// content edge can travel at most its own overhang past the screen edge.
func PanLimit(content Size, zoom float64, screen Size) Point {
	return Point{
		X: math.Max(0, (content.W*zoom-screen.W)/2),
		Y: math.Max(0, (content.H*zoom-screen.H)/2),
	}
}

// ClampOffset limits each component of off to [-limit, limit].
func ClampOffset(off, limit Point) Point {
	return Point{
		X: clamp(off.X, -limit.X, limit.X),
		Y: clamp(off.Y, -limit.Y, limit.Y),
	}
}
