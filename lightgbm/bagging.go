package lightgbm

import (
	"math"
	"math/rand/v2"
	"sort"
)

// newRand returns a deterministic generator for a LightGBM-style integer seed.
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// rowSampler draws the in-bag rows for bagging.
type rowSampler struct {
	rng    *rand.Rand
	params TrainingParams
	label  []float64
}

func newRowSampler(p TrainingParams, label []float64) *rowSampler {
	return &rowSampler{rng: newRand(p.BaggingSeed), params: p, label: label}
}

// sample returns ascending row indices.
func (s *rowSampler) sample() []int {
	n := len(s.label)
	if s.params.balancedBagging() {
		rows := make([]int, 0, n)
		for i, y := range s.label {
			fraction := s.params.NegBaggingFraction
			if y > 0 {
				fraction = s.params.PosBaggingFraction
			}
			if s.rng.Float64() < fraction {
				rows = append(rows, i)
			}
		}
		return rows
	}

	k := int(s.params.BaggingFraction * float64(n))
	if k < 1 {
		k = 1
	}
	return choose(s.rng, seq(n), k)
}

// featureSampler draws feature subsets per tree and per node.
type featureSampler struct {
	rng    *rand.Rand
	byTree float64
	byNode float64
}

func newFeatureSampler(p TrainingParams) *featureSampler {
	return &featureSampler{rng: newRand(p.FeatureFractionSeed), byTree: p.FeatureFraction, byNode: p.FeatureFractionByNode}
}

func (s *featureSampler) forTree(usable []int) []int {
	return s.subset(usable, s.byTree)
}

func (s *featureSampler) forNode(treeFeatures []int) []int {
	return s.subset(treeFeatures, s.byNode)
}

func (s *featureSampler) subset(features []int, fraction float64) []int {
	if fraction >= 1 || len(features) <= 1 {
		return features
	}
	k := int(math.Round(fraction * float64(len(features))))
	if k < 1 {
		k = 1
	}
	return choose(s.rng, append([]int(nil), features...), k)
}

// choose picks k items of pool without replacement and returns them sorted.
// pool is shuffled in place.
func choose(rng *rand.Rand, pool []int, k int) []int {
	if k >= len(pool) {
		sort.Ints(pool)
		return pool
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	picked := pool[:k]
	sort.Ints(picked)
	return picked
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
