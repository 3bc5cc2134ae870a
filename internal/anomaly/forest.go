package anomaly

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649

// ForestConfig parameterizes an isolation forest.
type ForestConfig struct {
	Trees      int
	MaxSamples int
	Seed       int64
}

// DefaultForestConfig returns 100 trees of up to 256 samples seeded with 42.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 100, MaxSamples: 256, Seed: 42}
}

type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	size      int // samples that reached a leaf
}

func (n *node) leaf() bool {
	return n.left == nil
}

// Forest is a fitted isolation forest.
type Forest struct {
	trees      []*node
	sampleSize int
}

// FitForest grows cfg.Trees isolation trees over x. Each tree sees min(MaxSamples, len(x))
// rows drawn without replacement and is grown to depth ceil(log2(sampleSize)).
func FitForest(x [][]float64, cfg ForestConfig) (*Forest, error) {
	if len(x) < 2 {
		return nil, errors.New("isolation forest needs at least 2 samples")
	}
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultForestConfig().Trees
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultForestConfig().MaxSamples
	}
	features := len(x[0])
	for _, row := range x {
		if len(row) != features {
			return nil, errors.New("isolation forest rows have different widths")
		}
	}

	sampleSize := min(cfg.MaxSamples, len(x))
	maxDepth := int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))

	rng := rand.New(rand.NewSource(cfg.Seed))
	b := &builder{x: x, rng: rng, maxDepth: maxDepth, features: make([]int, features)}

	f := &Forest{trees: make([]*node, cfg.Trees), sampleSize: sampleSize}
	for t := range f.trees {
		idx := rng.Perm(len(x))[:sampleSize]
		f.trees[t] = b.grow(idx, 0)
	}
	return f, nil
}

// Score returns the anomaly score 2^(-E[h(x)]/c(sampleSize)) in (0,1]; higher is more unusual.
func (f *Forest) Score(row []float64) float64 {
	var depth float64
	for _, t := range f.trees {
		depth += pathLength(t, row)
	}
	mean := depth / float64(len(f.trees))
	return math.Pow(2, -mean/averagePathLength(f.sampleSize))
}

type builder struct {
	x        [][]float64
	rng      *rand.Rand
	maxDepth int
	features []int
}

func (b *builder) grow(idx []int, depth int) *node {
	if depth >= b.maxDepth || len(idx) <= 1 {
		return &node{size: len(idx)}
	}

	feature, lo, hi, ok := b.pickFeature(idx)
	if !ok {
		return &node{size: len(idx)}
	}

	threshold := lo + b.rng.Float64()*(hi-lo)
	if threshold >= hi {
		threshold = lo
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &node{
		feature:   feature,
		threshold: threshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

// pickFeature draws features uniformly without replacement until one varies across idx.
func (b *builder) pickFeature(idx []int) (feature int, lo, hi float64, ok bool) {
	for i := range b.features {
		b.features[i] = i
	}
	for i := range b.features {
		j := i + b.rng.Intn(len(b.features)-i)
		b.features[i], b.features[j] = b.features[j], b.features[i]

		f := b.features[i]
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, r := range idx {
			v := b.x[r][f]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi > lo {
			return f, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

func pathLength(n *node, row []float64) float64 {
	depth := 0.0
	for !n.leaf() {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return depth + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean depth of an unsuccessful search in a binary
// search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// percentile matches numpy's default linear interpolation.
func percentile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}
