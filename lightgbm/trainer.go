package lightgbm

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnrank/core/parallel"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
)

// Dataset holds the weighted labeled rows a booster is fit on.
type Dataset struct {
	X            mat.Matrix
	Label        []float64
	Weight       []float64
	FeatureNames []string
}

// NewDataset validates shapes and weights. weight may be nil for unit
// weights; names may be nil for Column_<j> names.
func NewDataset(X mat.Matrix, label, weight []float64, names []string) (*Dataset, error) {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "lightgbm.NewDataset")
	}
	if len(label) != rows {
		return nil, errors.NewDimensionError("lightgbm.NewDataset", rows, len(label), 0)
	}
	if weight != nil {
		if len(weight) != rows {
			return nil, errors.NewDimensionError("lightgbm.NewDataset", rows, len(weight), 0)
		}
		var total float64
		for i, w := range weight {
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return nil, errors.NewValueError("lightgbm.NewDataset", fmt.Sprintf("weight[%d]=%v must be finite and non-negative", i, w))
			}
			total += w
		}
		if total == 0 {
			return nil, errors.NewValueError("lightgbm.NewDataset", "weights sum to zero")
		}
	}
	for i, y := range label {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, errors.NewValueError("lightgbm.NewDataset", fmt.Sprintf("label[%d]=%v must be finite", i, y))
		}
	}

	if names == nil {
		names = make([]string, cols)
		for j := range names {
			names[j] = fmt.Sprintf("Column_%d", j)
		}
	}
	if len(names) != cols {
		return nil, errors.NewDimensionError("lightgbm.NewDataset", cols, len(names), 1)
	}
	seen := make(map[string]struct{}, cols)
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, errors.NewValueError("lightgbm.NewDataset", "duplicate feature name "+name)
		}
		seen[name] = struct{}{}
	}

	return &Dataset{X: X, Label: label, Weight: weight, FeatureNames: append([]string(nil), names...)}, nil
}

// Trainer grows a gradient boosted tree ensemble leaf-wise over feature
// histograms.
type Trainer struct {
	params TrainingParams
	logger log.Logger

	data      *binnedData
	names     []string
	objective ObjectiveFunction
	workers   int

	scores []float64
	grad   []float64
	hess   []float64
	bag    []int

	rows     *rowSampler
	features *featureSampler
	usable   []int

	trees []Tree
}

// NewTrainer creates a trainer. Parameters are validated by Fit.
func NewTrainer(params TrainingParams) *Trainer {
	return &Trainer{
		params: params,
		logger: log.GetLoggerWithName("lightgbm.trainer"),
	}
}

// WithLogger replaces the trainer's logger.
func (t *Trainer) WithLogger(logger log.Logger) *Trainer {
	t.logger = logger
	return t
}

// Fit trains on ds. Results depend only on ds and the parameters, not on
// the number of threads.
func (t *Trainer) Fit(ds *Dataset) (err error) {
	defer errors.Recover(&err, "lightgbm.Trainer.Fit")

	if err := t.params.Validate(); err != nil {
		return err
	}
	if ds == nil {
		return errors.Wrap(errors.ErrEmptyData, "lightgbm.Trainer.Fit")
	}

	start := time.Now()
	t.workers = parallel.Workers(t.params.NumThreads)
	t.names = ds.FeatureNames
	t.trees = nil

	t.objective, err = newObjective(t.params, ds.Label, ds.Weight)
	if err != nil {
		return err
	}

	t.data = buildBins(ds.X, t.params.MaxBin, t.workers)
	t.usable = t.usable[:0]
	for j, m := range t.data.mappers {
		if !m.Trivial() {
			t.usable = append(t.usable, j)
		}
	}

	n := t.data.rows
	t.scores = make([]float64, n)
	t.grad = make([]float64, n)
	t.hess = make([]float64, n)
	init := t.objective.InitScore()
	for i := range t.scores {
		t.scores[i] = init
	}

	t.features = newFeatureSampler(t.params)
	if t.params.bagging() {
		t.rows = newRowSampler(t.params, ds.Label)
	}
	t.bag = nil

	for iter := 0; iter < t.params.NumIterations; iter++ {
		if t.rows != nil && iter%t.params.BaggingFreq == 0 {
			t.bag = t.rows.sample()
		}

		parallel.ParallelizeWithThreshold(n, 4096, t.workers, func(s, e int) {
			t.objective.Gradients(t.scores, t.grad, t.hess, s, e)
		})

		tree := t.growTree(iter)
		if tree.NumLeaves <= 1 {
			t.logger.Debug("No split satisfies the growth constraints, stopping", log.IterationKey, iter)
			break
		}
		t.trees = append(t.trees, tree)
		t.applyTree(&tree)

		if t.params.Verbosity > 0 && iter%50 == 0 && t.logger.Enabled(context.Background(), log.LevelDebug) {
			t.logger.Debug("Training progress",
				log.IterationKey, iter,
				log.LeavesKey, tree.NumLeaves,
				log.LossKey, t.objective.Loss(t.scores),
			)
		}
	}

	t.logger.Debug("Booster trained",
		"trees", len(t.trees),
		log.SamplesKey, n,
		log.FeaturesKey, len(t.names),
		"features.usable", len(t.usable),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	// training buffers are not needed by the model
	t.data, t.scores, t.grad, t.hess, t.bag = nil, nil, nil, nil, nil
	return nil
}

// GetModel returns the trained model, or an unfitted one before Fit.
func (t *Trainer) GetModel() *Model {
	if t.objective == nil {
		return &Model{}
	}
	return &Model{
		Trees:        t.trees,
		InitScore:    t.objective.InitScore(),
		Objective:    t.objective.Name(),
		LearningRate: t.params.LearningRate,
		NumFeatures:  len(t.names),
		Names:        append([]string(nil), t.names...),
		NumThreads:   t.params.NumThreads,
	}
}

// Train is Fit followed by GetModel.
func Train(params TrainingParams, ds *Dataset) (*Model, error) {
	t := NewTrainer(params)
	if err := t.Fit(ds); err != nil {
		return nil, err
	}
	return t.GetModel(), nil
}

type splitInfo struct {
	valid       bool
	feature     int
	bin         uint8
	defaultLeft bool
	gain        float64
	leftG       float64
	leftH       float64
	leftCount   int
}

type leafState struct {
	node  int
	rows  []int
	sumG  float64
	sumH  float64
	depth int
	best  splitInfo
}

func (t *Trainer) newLeaf(node int, rows []int, depth int) *leafState {
	leaf := &leafState{node: node, rows: rows, depth: depth}
	for _, r := range rows {
		leaf.sumG += t.grad[r]
		leaf.sumH += t.hess[r]
	}
	return leaf
}

func (t *Trainer) growTree(iter int) Tree {
	tree := Tree{
		TreeIndex:     iter,
		ShrinkageRate: t.params.LearningRate,
		Nodes:         []Node{{NodeID: 0, ParentID: -1, LeftChild: -1, RightChild: -1, NodeType: LeafNode}},
	}

	rows := t.bag
	if rows == nil {
		rows = seq(t.data.rows)
	}
	treeFeatures := t.features.forTree(t.usable)

	root := t.newLeaf(0, rows, 0)
	root.best = t.findBestSplit(root, treeFeatures)
	leaves := []*leafState{root}

	for len(leaves) < t.params.NumLeaves {
		bestIdx := -1
		for i, leaf := range leaves {
			if leaf.best.valid && (bestIdx < 0 || leaf.best.gain > leaves[bestIdx].best.gain) {
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}

		leaf := leaves[bestIdx]
		split := leaf.best
		mapper := t.data.mappers[split.feature]
		missingBin := mapper.MissingBin()
		col := t.data.bins[split.feature]

		leftRows := make([]int, 0, split.leftCount)
		rightRows := make([]int, 0, len(leaf.rows)-split.leftCount)
		for _, r := range leaf.rows {
			b := col[r]
			if (b == missingBin && split.defaultLeft) || (b != missingBin && b <= split.bin) {
				leftRows = append(leftRows, r)
			} else {
				rightRows = append(rightRows, r)
			}
		}

		leftID, rightID := len(tree.Nodes), len(tree.Nodes)+1
		node := &tree.Nodes[leaf.node]
		node.NodeType = NumericalNode
		node.SplitFeature = split.feature
		node.Threshold = mapper.UpperBounds[split.bin]
		node.ThresholdBin = split.bin
		node.DefaultLeft = split.defaultLeft
		node.Gain = split.gain
		node.LeftChild, node.RightChild = leftID, rightID
		if mapper.HasMissing {
			node.MissingType = MissingNaN
		}
		depth := leaf.depth + 1
		tree.Nodes = append(tree.Nodes,
			Node{NodeID: leftID, ParentID: leaf.node, LeftChild: -1, RightChild: -1, NodeType: LeafNode, Depth: depth},
			Node{NodeID: rightID, ParentID: leaf.node, LeftChild: -1, RightChild: -1, NodeType: LeafNode, Depth: depth},
		)

		left := t.newLeaf(leftID, leftRows, depth)
		right := t.newLeaf(rightID, rightRows, depth)
		leaves[bestIdx] = left
		leaves = append(leaves, right)
		if len(leaves) < t.params.NumLeaves {
			left.best = t.findBestSplit(left, treeFeatures)
			right.best = t.findBestSplit(right, treeFeatures)
		}
	}

	for _, leaf := range leaves {
		node := &tree.Nodes[leaf.node]
		node.LeafValue = t.leafOutput(leaf.sumG, leaf.sumH)
		node.LeafCount = len(leaf.rows)
		node.LeafHess = leaf.sumH
	}
	tree.NumLeaves = len(leaves)
	return tree
}

func (t *Trainer) findBestSplit(leaf *leafState, treeFeatures []int) splitInfo {
	p := t.params
	if p.MaxDepth > 0 && leaf.depth >= p.MaxDepth {
		return splitInfo{}
	}
	if len(leaf.rows) < 2*p.MinDataInLeaf || len(leaf.rows) < 2 {
		return splitInfo{}
	}
	features := t.features.forNode(treeFeatures)
	if len(features) == 0 {
		return splitInfo{}
	}

	results := make([]splitInfo, len(features))
	parallel.Parallelize(len(features), t.workers, func(start, end int) {
		var g, h [256]float64
		var c [256]int
		for k := start; k < end; k++ {
			results[k] = t.scanFeature(leaf, features[k], g[:], h[:], c[:])
		}
	})

	best := splitInfo{}
	for _, r := range results {
		if r.valid && (!best.valid || r.gain > best.gain) {
			best = r
		}
	}
	return best
}

// scanFeature builds the histogram of one feature over the leaf rows and
// evaluates every threshold with missing values sent either way.
func (t *Trainer) scanFeature(leaf *leafState, feature int, g, h []float64, c []int) splitInfo {
	p := t.params
	mapper := t.data.mappers[feature]
	numBins := mapper.NumBins()
	missing := int(mapper.MissingBin())
	for b := 0; b <= missing; b++ {
		g[b], h[b], c[b] = 0, 0, 0
	}
	col := t.data.bins[feature]
	for _, r := range leaf.rows {
		b := col[r]
		g[b] += t.grad[r]
		h[b] += t.hess[r]
		c[b]++
	}

	total := len(leaf.rows)
	parentGain := t.leafGain(leaf.sumG, leaf.sumH)
	best := splitInfo{feature: feature, gain: p.MinGainToSplit}

	directions := []bool{false}
	lastBin := numBins - 2
	if c[missing] > 0 {
		directions = []bool{false, true}
		lastBin = numBins - 1
	}

	var lg, lh float64
	var lc int
	for b := 0; b <= lastBin; b++ {
		lg += g[b]
		lh += h[b]
		lc += c[b]
		for _, missLeft := range directions {
			if missLeft && b == numBins-1 {
				// everything left
				continue
			}
			leftG, leftH, leftC := lg, lh, lc
			if missLeft {
				leftG += g[missing]
				leftH += h[missing]
				leftC += c[missing]
			}
			rightG, rightH, rightC := leaf.sumG-leftG, leaf.sumH-leftH, total-leftC
			if leftC < p.MinDataInLeaf || rightC < p.MinDataInLeaf || leftC == 0 || rightC == 0 {
				continue
			}
			if leftH < p.MinSumHessianInLeaf || rightH < p.MinSumHessianInLeaf {
				continue
			}
			gain := t.leafGain(leftG, leftH) + t.leafGain(rightG, rightH) - parentGain
			if gain > best.gain {
				best = splitInfo{
					valid:       true,
					feature:     feature,
					bin:         uint8(b),
					defaultLeft: missLeft,
					gain:        gain,
					leftG:       leftG,
					leftH:       leftH,
					leftCount:   leftC,
				}
			}
		}
	}
	return best
}

func thresholdL1(s, l1 float64) float64 {
	reg := math.Max(0, math.Abs(s)-l1)
	if s < 0 {
		return -reg
	}
	return reg
}

func (t *Trainer) leafOutput(sumG, sumH float64) float64 {
	out := -thresholdL1(sumG, t.params.LambdaL1) / (sumH + t.params.LambdaL2 + 1e-15)
	if t.params.MaxDeltaStep > 0 && math.Abs(out) > t.params.MaxDeltaStep {
		out = math.Copysign(t.params.MaxDeltaStep, out)
	}
	return out
}

func (t *Trainer) leafGain(sumG, sumH float64) float64 {
	out := t.leafOutput(sumG, sumH)
	sg := thresholdL1(sumG, t.params.LambdaL1)
	return -(2*sg*out + (sumH+t.params.LambdaL2)*out*out)
}

// applyTree adds the tree's output to every row's score, in-bag or not.
func (t *Trainer) applyTree(tree *Tree) {
	parallel.ParallelizeWithThreshold(t.data.rows, 4096, t.workers, func(s, e int) {
		for i := s; i < e; i++ {
			t.scores[i] += t.predictBinned(tree, i)
		}
	})
}

func (t *Trainer) predictBinned(tree *Tree, row int) float64 {
	nodeID := 0
	for {
		node := &tree.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue * tree.ShrinkageRate
		}
		b := t.data.bins[node.SplitFeature][row]
		left := b <= node.ThresholdBin
		if b == t.data.mappers[node.SplitFeature].MissingBin() {
			left = node.DefaultLeft
		}
		if left {
			nodeID = node.LeftChild
		} else {
			nodeID = node.RightChild
		}
	}
}
