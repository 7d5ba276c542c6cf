// Package distance implements the two base metrics named in spec.md §4.1
// (squared L2 and inner product) plus the "adapted distance" extension
// point storage backends use to fold in per-backend decoding state,
// generalized from the teacher's VectorMath dispatch in pkg/math/simd.go.
package distance

// Metric is a base comparator over two equal-length float32 vectors.
type Metric int

const (
	// L2 is squared Euclidean distance: smaller is closer.
	L2 Metric = iota
	// InnerProduct is the plain (not negated) dot product: larger is
	// closer; see Polarity below for the comparator direction.
	InnerProduct
)

func (m Metric) String() string {
	if m == InnerProduct {
		return "inner_product"
	}
	return "l2"
}

// Polarity reports whether a metric's raw values rank "smaller is
// closer" or "larger is closer", per spec.md §4.1's comparator-polarity
// requirement.
type Polarity int

const (
	LessIsCloser Polarity = iota
	GreaterIsCloser
)

// PolarityOf reports m's native comparator direction.
func PolarityOf(m Metric) Polarity {
	if m == InnerProduct {
		return GreaterIsCloser
	}
	return LessIsCloser
}

// Compute evaluates metric m between a and b, both length-checked by the
// caller (storage backends guarantee equal length before calling in).
func Compute(m Metric, a, b []float32) float32 {
	switch m {
	case InnerProduct:
		return innerProduct(a, b)
	default:
		return squaredL2(a, b)
	}
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		sum += d0*d0 + d1*d1 + d2*d2 + d3*d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func innerProduct(a, b []float32) float32 {
	var sum float32
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		sum += a[i]*b[i] + a[i+1]*b[i+1] + a[i+2]*b[i+2] + a[i+3]*b[i+3]
	}
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// QueryState is the thread-local comparator state produced by
// FixArgument: per spec.md §4.1, "a fix-argument hook called once per
// query... returning a thread-local comparator object".
type QueryState struct {
	Metric Metric
	Query  []float32
}

// Adapted is the adapted-distance extension point each storage backend
// supplies: a query-fixing hook, a compute hook against a decoded
// datum, and the comparator polarity, per spec.md §4.1.
type Adapted interface {
	// FixArgument precomputes per-query state (norms, decoded query,
	// etc.) once per search call.
	FixArgument(query []float32) QueryState
	// Compute scores a fixed query state against a storage-decoded
	// vector datum.
	Compute(state QueryState, datum []float32) float32
	// Polarity reports this adapter's comparator direction.
	Polarity() Polarity
}

// Plain is the identity adapted distance over float32 storage: no
// decoding, no per-backend state beyond the metric itself. This is what
// StorageFloat32-backed indexes use.
type Plain struct {
	Metric Metric
}

func (p Plain) FixArgument(query []float32) QueryState {
	return QueryState{Metric: p.Metric, Query: query}
}

func (p Plain) Compute(state QueryState, datum []float32) float32 {
	return Compute(state.Metric, state.Query, datum)
}

func (p Plain) Polarity() Polarity { return PolarityOf(p.Metric) }

// Closer reports whether score x ranks closer than score y under
// polarity pol — the single comparison every search buffer and
// candidate set uses instead of hardcoding "<".
func Closer(pol Polarity, x, y float32) bool {
	if pol == GreaterIsCloser {
		return x > y
	}
	return x < y
}
