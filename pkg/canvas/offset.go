package canvas

// OffsetManager converts between the viewport-relative "local" coordinates the
// model reasons in and the absolute "world" coordinates the canvas document
// stores. The origin is the world position of the viewport center at the time
// the current screenshot was captured; it must be reset whenever a fresh
// screenshot or viewport is taken and never reused across viewport jumps.
type OffsetManager struct {
	origin Point
}

// NewOffsetManager returns a manager with the given world origin.
func NewOffsetManager(origin Point) *OffsetManager {
	return &OffsetManager{origin: origin}
}

// SetOrigin resets the world origin of the local coordinate frame.
func (m *OffsetManager) SetOrigin(origin Point) {
	m.origin = origin
}

// Origin returns the current world origin.
func (m *OffsetManager) Origin() Point {
	return m.origin
}

// Serialize converts a world point into the local frame.
func (m *OffsetManager) Serialize(world Point) Point {
	return world.Sub(m.origin)
}

// Interpret converts a local point back into world coordinates.
func (m *OffsetManager) Interpret(local Point) Point {
	return local.Add(m.origin)
}

// SerializeBox converts a world box into the local frame. Width and height are
// frame-independent.
func (m *OffsetManager) SerializeBox(world Box) Box {
	p := m.Serialize(world.Origin())
	return Box{X: p.X, Y: p.Y, W: world.W, H: world.H}
}

// InterpretBox converts a local box back into world coordinates.
func (m *OffsetManager) InterpretBox(local Box) Box {
	p := m.Interpret(local.Origin())
	return Box{X: p.X, Y: p.Y, W: local.W, H: local.H}
}
