package canvas

// Point is a location in canvas coordinates. Whether the coordinates are
// world-absolute or viewport-relative depends on which side of the offset
// transform the value sits on.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p translated by -q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Box is an axis-aligned rectangle anchored at its top-left corner.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Origin returns the top-left corner of the box.
func (b Box) Origin() Point {
	return Point{X: b.X, Y: b.Y}
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Viewport describes the visible region of the canvas on a client.
type Viewport struct {
	Bounds Box     `json:"bounds"`
	Zoom   float64 `json:"zoom,omitempty"`
}

// Center returns the world-space center of the viewport.
func (v Viewport) Center() Point {
	return v.Bounds.Center()
}
