package engine

// Generator is a xorshift32 pseudo-random stream. It is a pure function of the
// seed and the number of calls made so far.
type Generator struct {
	state uint32
}

// NewGenerator creates a generator from seed. Only the low 32 bits of the seed
// are used and a zero seed maps to 1, since zero is a fixed point of xorshift.
func NewGenerator(seed int64) *Generator {
	s := uint32(seed)
	if s == 0 {
		s = 1
	}
	return &Generator{state: s}
}

// restoreGenerator resumes a stream from a raw state previously returned by State.
func restoreGenerator(state uint32) *Generator {
	if state == 0 {
		state = 1
	}
	return &Generator{state: state}
}

// Float64 advances the stream and returns a value in [0,1).
func (g *Generator) Float64() float64 {
	x := g.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	g.state = x
	return float64(x) / 4294967296.0
}

// Intn returns floor(Float64()*n).
func (g *Generator) Intn(n int) int {
	return int(g.Float64() * float64(n))
}

// State returns the raw 32-bit state, used to persist the stream position.
func (g *Generator) State() uint32 {
	return g.state
}

func (g *Generator) clone() *Generator {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}
