package lightgbm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnrank/core/parallel"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// NodeType tells leaves from splits.
type NodeType int

const (
	// LeafNode is a terminal node with a value.
	LeafNode NodeType = iota
	// NumericalNode splits on value <= Threshold.
	NumericalNode
)

// MissingType controls how NaN is routed at a split.
type MissingType int

const (
	// MissingNone means no NaN was seen in training; NaN is treated as zero.
	MissingNone MissingType = iota
	// MissingNaN routes NaN to the DefaultLeft side chosen during training.
	MissingNaN
)

// Node is a single node of a tree. Children are indices into Tree.Nodes,
// -1 for leaves.
type Node struct {
	NodeID     int
	ParentID   int
	LeftChild  int
	RightChild int
	NodeType   NodeType
	Depth      int

	// Split
	SplitFeature int
	Threshold    float64
	ThresholdBin uint8
	MissingType  MissingType
	DefaultLeft  bool
	Gain         float64

	// Leaf
	LeafValue float64
	LeafCount int
	LeafHess  float64
}

// IsLeaf returns true if the node is a leaf node.
func (n *Node) IsLeaf() bool {
	return n.NodeType == LeafNode
}

func (n *Node) goLeft(v float64) bool {
	if math.IsNaN(v) {
		if n.MissingType == MissingNaN {
			return n.DefaultLeft
		}
		v = 0
	}
	return v <= n.Threshold
}

// Tree is one boosting round.
type Tree struct {
	TreeIndex     int
	NumLeaves     int
	ShrinkageRate float64
	Nodes         []Node
}

// Predict returns the shrunk output of the leaf features falls into.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0
	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue * t.ShrinkageRate
		}
		if node.goLeft(features[node.SplitFeature]) {
			nodeID = node.LeftChild
		} else {
			nodeID = node.RightChild
		}
	}
	return 0
}

// Model is a trained booster.
type Model struct {
	Trees        []Tree
	InitScore    float64
	Objective    string
	LearningRate float64
	NumFeatures  int
	Names        []string
	NumThreads   int
}

// FeatureNames returns the feature names in fit order. Prediction input
// columns must follow this order.
func (m *Model) FeatureNames() []string {
	return append([]string(nil), m.Names...)
}

// NumTrees returns the number of boosting rounds kept.
func (m *Model) NumTrees() int { return len(m.Trees) }

// PredictRaw returns the raw margin for each row of X. A model that stopped
// before its first split predicts InitScore everywhere.
func (m *Model) PredictRaw(X mat.Matrix) ([]float64, error) {
	if m == nil || m.NumFeatures == 0 {
		return nil, errors.NewNotFittedError("lightgbm.Model", "PredictRaw")
	}
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("lightgbm.Model.PredictRaw", m.NumFeatures, cols, 1)
	}

	out := make([]float64, rows)
	parallel.ParallelizeWithThreshold(rows, 1000, m.NumThreads, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			score := m.InitScore
			for k := range m.Trees {
				score += m.Trees[k].Predict(row)
			}
			out[i] = score
		}
	})
	return out, nil
}

// Predict returns the model output for each row of X: probabilities for the
// binary objective.
func (m *Model) Predict(X mat.Matrix) ([]float64, error) {
	raw, err := m.PredictRaw(X)
	if err != nil {
		return nil, err
	}
	if m.Objective == "binary" {
		for i, r := range raw {
			raw[i] = sigmoid(r)
		}
	}
	return raw, nil
}

// SplitCounts returns how often each feature is used for a split.
func (m *Model) SplitCounts() []int {
	counts := make([]int, m.NumFeatures)
	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if !node.IsLeaf() {
				counts[node.SplitFeature]++
			}
		}
	}
	return counts
}
