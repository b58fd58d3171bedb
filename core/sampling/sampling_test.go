package sampling

import (
	"testing"

	"github.com/YuminosukeSato/churnrank/core/frame"
)

func buildFrame(t *testing.T, n int) *frame.Frame {
	t.Helper()
	f := frame.New([]string{"x"})
	for i := 0; i < n; i++ {
		outcome := frame.Stable
		switch i % 10 {
		case 0:
			outcome = frame.AtRisk
		case 1:
			outcome = frame.Attrited
		}
		if err := f.Append(int64(1000+i), 202107, outcome, []float64{float64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func TestHashDeterministic(t *testing.T) {
	for _, id := range []int64{0, 1, 29183981, -7} {
		if Hash(id, 0) != Hash(id, 0) {
			t.Errorf("Hash(%d, 0) is not deterministic", id)
		}
		if Hash(id, 0) == Hash(id, 1) {
			t.Errorf("Hash(%d, seed) should depend on the seed", id)
		}
		if b := Bucket(id, 0); b < 0 || b >= 1 {
			t.Errorf("Bucket(%d) = %v, want [0,1)", id, b)
		}
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		fraction float64
		want     bool
	}{
		{fraction: 0, want: false},
		{fraction: 0.31, want: true},
		{fraction: 0.999, want: true},
		{fraction: 1, want: false},
		{fraction: 1.5, want: false},
		{fraction: -0.1, want: false},
	}
	for _, tt := range tests {
		if got := Enabled(tt.fraction); got != tt.want {
			t.Errorf("Enabled(%v) = %v, want %v", tt.fraction, got, tt.want)
		}
	}
}

func TestUndersample(t *testing.T) {
	f := buildFrame(t, 5000)

	t.Run("non-stable rows always kept", func(t *testing.T) {
		got := Undersample(f, 0.05, PipelineSeed)
		churn := 0
		for i := 0; i < got.Len(); i++ {
			if got.Outcome(i) != frame.Stable {
				churn++
			}
		}
		if churn != 1000 {
			t.Errorf("kept %d non-stable rows, want 1000", churn)
		}
	})

	t.Run("fraction close to requested", func(t *testing.T) {
		got := Undersample(f, 0.31, PipelineSeed)
		stable := got.Len() - 1000
		ratio := float64(stable) / 4000
		if ratio < 0.26 || ratio > 0.36 {
			t.Errorf("stable retention = %.3f, want about 0.31", ratio)
		}
	})

	t.Run("deterministic and order independent", func(t *testing.T) {
		a := Undersample(f, 0.5, PipelineSeed)
		b := Undersample(f, 0.5, PipelineSeed)
		if a.Len() != b.Len() {
			t.Fatalf("lengths differ: %d vs %d", a.Len(), b.Len())
		}
		for i := 0; i < a.Len(); i++ {
			if a.CustomerID(i) != b.CustomerID(i) {
				t.Fatalf("row %d differs", i)
			}
		}
		for i := 0; i < f.Len(); i++ {
			id, o := f.CustomerID(i), f.Outcome(i)
			if Keep(id, o, 0.5, PipelineSeed) != Keep(id, o, 0.5, PipelineSeed) {
				t.Fatalf("Keep(%d) not stable", id)
			}
		}
	})

	t.Run("disabled fraction is a no-op", func(t *testing.T) {
		for _, fraction := range []float64{0, 1} {
			if got := Undersample(f, fraction, PipelineSeed); got != f {
				t.Errorf("Undersample(%v) should return the frame unchanged", fraction)
			}
			if Filter(fraction, PipelineSeed) != nil {
				t.Errorf("Filter(%v) should be nil", fraction)
			}
		}
	})

	t.Run("filter matches undersample", func(t *testing.T) {
		filter := Filter(0.2, PipelineSeed)
		want := Undersample(f, 0.2, PipelineSeed)
		kept := 0
		for i := 0; i < f.Len(); i++ {
			if filter(f.CustomerID(i), f.Outcome(i)) {
				kept++
			}
		}
		if kept != want.Len() {
			t.Errorf("filter kept %d rows, Undersample kept %d", kept, want.Len())
		}
	})
}
