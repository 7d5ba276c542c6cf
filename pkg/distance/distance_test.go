package distance

import "testing"

func TestSquaredL2(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{1, 2, 3, 4, 5}
	if got := Compute(L2, a, b); got != 0 {
		t.Errorf("Compute(L2, a, a) = %v, want 0", got)
	}

	c := []float32{0, 0, 0, 0, 0}
	if got, want := Compute(L2, a, c), float32(1+4+9+16+25); got != want {
		t.Errorf("Compute(L2, a, 0) = %v, want %v", got, want)
	}
}

func TestInnerProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	if got, want := Compute(InnerProduct, a, b), float32(1*4+2*5+3*6); got != want {
		t.Errorf("Compute(InnerProduct, a, b) = %v, want %v", got, want)
	}
}

func TestPolarityOf(t *testing.T) {
	if PolarityOf(L2) != LessIsCloser {
		t.Errorf("PolarityOf(L2) = %v, want LessIsCloser", PolarityOf(L2))
	}
	if PolarityOf(InnerProduct) != GreaterIsCloser {
		t.Errorf("PolarityOf(InnerProduct) = %v, want GreaterIsCloser", PolarityOf(InnerProduct))
	}
}

func TestCloser(t *testing.T) {
	if !Closer(LessIsCloser, 1, 2) {
		t.Errorf("Closer(LessIsCloser, 1, 2) = false, want true")
	}
	if Closer(LessIsCloser, 2, 1) {
		t.Errorf("Closer(LessIsCloser, 2, 1) = true, want false")
	}
	if !Closer(GreaterIsCloser, 2, 1) {
		t.Errorf("Closer(GreaterIsCloser, 2, 1) = false, want true")
	}
}

func TestPlainAdapted(t *testing.T) {
	p := Plain{Metric: L2}
	state := p.FixArgument([]float32{1, 1})
	got := p.Compute(state, []float32{1, 1})
	if got != 0 {
		t.Errorf("Plain.Compute on identical vectors = %v, want 0", got)
	}
	if p.Polarity() != LessIsCloser {
		t.Errorf("Plain{L2}.Polarity() = %v, want LessIsCloser", p.Polarity())
	}
}

func TestMetricString(t *testing.T) {
	if L2.String() != "l2" {
		t.Errorf("L2.String() = %q, want \"l2\"", L2.String())
	}
	if InnerProduct.String() != "inner_product" {
		t.Errorf("InnerProduct.String() = %q, want \"inner_product\"", InnerProduct.String())
	}
}

// Non-multiple-of-4 length exercises the scalar tail loop alongside the
// unrolled body.
func TestSquaredL2OddLength(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6, 7}
	b := []float32{0, 0, 0, 0, 0, 0, 0}
	var want float32
	for _, v := range a {
		want += v * v
	}
	if got := Compute(L2, a, b); got != want {
		t.Errorf("Compute(L2, a, 0) = %v, want %v", got, want)
	}
}
