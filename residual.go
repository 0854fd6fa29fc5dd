package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
)

// NormalizedError computes the residual-diagnostic target
// (prediction-observation)/scale, where scale is a heteroskedastic
// sqrt(|prediction|) floored at scaleFloor so near-zero fluxes do not blow
// the signal up.
func NormalizedError(pred, obs []float64, scaleFloor float64) ([]float64, error) {
	if len(pred) != len(obs) {
		return nil, fmt.Errorf("%w: length mismatch %d vs %d", ErrInvalidInput, len(pred), len(obs))
	}
	if scaleFloor <= 0 {
		return nil, fmt.Errorf("%w: scale floor must be positive", ErrInvalidInput)
	}
	out := make([]float64, len(pred))
	for i := range pred {
		scale := math.Sqrt(math.Abs(pred[i]))
		if scale < scaleFloor {
			scale = scaleFloor
		}
		out[i] = (pred[i] - obs[i]) / scale
	}
	return out, nil
}

// AlignDrivers selects the rows where mask is true and both the target and
// every driver are present, keeping drivers and target row-aligned. The
// residual models must see exactly the same quality mask as the error signal.
func AlignDrivers(d *DriverSet, target []float64, mask []bool) ([][]float64, []float64, error) {
	if len(d.Rows) != len(target) {
		return nil, nil, fmt.Errorf("%w: %d driver rows vs %d targets", ErrInvalidInput, len(d.Rows), len(target))
	}
	if mask != nil && len(mask) != len(target) {
		return nil, nil, fmt.Errorf("%w: mask length %d does not match %d", ErrInvalidInput, len(mask), len(target))
	}
	var X [][]float64
	var y []float64
	for i, row := range d.Rows {
		if mask != nil && !mask[i] {
			continue
		}
		if math.IsNaN(target[i]) {
			continue
		}
		ok := true
		for _, v := range row {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		X = append(X, row)
		y = append(y, target[i])
	}
	return X, y, nil
}

// TreeOptions bound the partitioning depth of a regression tree.
type TreeOptions struct {
	MaxDepth int
	MinLeaf  int
}

type treeNode struct {
	// -1 marks a leaf
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	// leaf mean and node statistics
	value float64
	mse   float64
	n     int
}

// RegressionTree partitions driver space into regions of homogeneous mean
// error by recursive variance-reduction splits.
type RegressionTree struct {
	root     *treeNode
	FeatName []string
}

type treeFitParams struct {
	opts TreeOptions
	// features considered per split; 0 means all
	mtry int
	rng  *rand.Rand
}

// FitRegressionTree grows a shallow CART-style tree on rows of X against
// target y. Rows and y must be aligned on the same quality mask.
func FitRegressionTree(X [][]float64, y []float64, featNames []string, opts TreeOptions) (*RegressionTree, error) {
	return fitTree(X, y, featNames, treeFitParams{opts: opts})
}

func fitTree(X [][]float64, y []float64, featNames []string, p treeFitParams) (*RegressionTree, error) {
	if len(X) != len(y) || len(X) == 0 {
		return nil, fmt.Errorf("%w: need equal non-empty rows and targets (%d vs %d)", ErrInvalidInput, len(X), len(y))
	}
	for i, row := range X {
		if len(row) != len(featNames) {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrInvalidInput, i, len(row), len(featNames))
		}
	}
	if p.opts.MaxDepth <= 0 {
		p.opts.MaxDepth = 3
	}
	if p.opts.MinLeaf <= 0 {
		p.opts.MinLeaf = 5
	}

	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	t := &RegressionTree{FeatName: featNames}
	t.root = growNode(X, y, idx, 0, p)
	return t, nil
}

func nodeStats(y []float64, idx []int) (mean, mse float64) {
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))
	for _, i := range idx {
		d := y[i] - mean
		mse += d * d
	}
	mse /= float64(len(idx))
	return mean, mse
}

func growNode(X [][]float64, y []float64, idx []int, depth int, p treeFitParams) *treeNode {
	mean, mse := nodeStats(y, idx)
	node := &treeNode{feature: -1, value: mean, mse: mse, n: len(idx)}
	if depth >= p.opts.MaxDepth || len(idx) < 2*p.opts.MinLeaf || mse == 0 {
		return node
	}

	nFeat := len(X[0])
	feats := make([]int, nFeat)
	for i := range feats {
		feats[i] = i
	}
	if p.mtry > 0 && p.mtry < nFeat {
		p.rng.Shuffle(nFeat, func(i, j int) { feats[i], feats[j] = feats[j], feats[i] })
		feats = feats[:p.mtry]
	}

	bestSSE := math.Inf(1)
	bestFeat := -1
	bestThresh := 0.0

	order := make([]int, len(idx))
	for _, f := range feats {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		// running sums over the sorted order give every candidate split in
		// one pass
		var sumL, sqL float64
		var sumR, sqR float64
		for _, i := range order {
			sumR += y[i]
			sqR += y[i] * y[i]
		}
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			sumL += y[i]
			sqL += y[i] * y[i]
			sumR -= y[i]
			sqR -= y[i] * y[i]

			nL := float64(k + 1)
			nR := float64(len(order) - k - 1)
			if k+1 < p.opts.MinLeaf || len(order)-k-1 < p.opts.MinLeaf {
				continue
			}
			// ties: cannot split between equal feature values
			if X[order[k]][f] == X[order[k+1]][f] {
				continue
			}
			sse := (sqL - sumL*sumL/nL) + (sqR - sumR*sumR/nR)
			if sse < bestSSE {
				bestSSE = sse
				bestFeat = f
				bestThresh = (X[order[k]][f] + X[order[k+1]][f]) / 2
			}
		}
	}

	if bestFeat < 0 {
		return node
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if X[i][bestFeat] <= bestThresh {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	if len(leftIdx) < p.opts.MinLeaf || len(rightIdx) < p.opts.MinLeaf {
		return node
	}

	node.feature = bestFeat
	node.threshold = bestThresh
	node.left = growNode(X, y, leftIdx, depth+1, p)
	node.right = growNode(X, y, rightIdx, depth+1, p)
	return node
}

// Predict returns the leaf mean for one driver row.
func (t *RegressionTree) Predict(row []float64) float64 {
	node := t.root
	for node.feature >= 0 {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

// Depth returns the depth of the fitted tree (0 for a single leaf).
func (t *RegressionTree) Depth() int {
	var walk func(n *treeNode) int
	walk = func(n *treeNode) int {
		if n == nil || n.feature < 0 {
			return 0
		}
		l := walk(n.left)
		r := walk(n.right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(t.root)
}

// NLeaves counts the terminal regions of the partition.
func (t *RegressionTree) NLeaves() int {
	var walk func(n *treeNode) int
	walk = func(n *treeNode) int {
		if n.feature < 0 {
			return 1
		}
		return walk(n.left) + walk(n.right)
	}
	return walk(t.root)
}

// String prints the partition, one region rule per leaf line.
func (t *RegressionTree) String() string {
	out := ""
	var walk func(n *treeNode, indent string)
	walk = func(n *treeNode, indent string) {
		if n.feature < 0 {
			out += fmt.Sprintf("%sleaf: mean=%.4f n=%d\n", indent, n.value, n.n)
			return
		}
		out += fmt.Sprintf("%s%s <= %.4f\n", indent, t.FeatName[n.feature], n.threshold)
		walk(n.left, indent+"  ")
		out += fmt.Sprintf("%s%s > %.4f\n", indent, t.FeatName[n.feature], n.threshold)
		walk(n.right, indent+"  ")
	}
	walk(t.root, "")
	return out
}

// accumImportance sums the SSE decrease of every internal node per feature.
func (t *RegressionTree) accumImportance(imp []float64) {
	var walk func(n *treeNode)
	walk = func(n *treeNode) {
		if n.feature < 0 {
			return
		}
		childSSE := n.left.mse*float64(n.left.n) + n.right.mse*float64(n.right.n)
		dec := n.mse*float64(n.n) - childSSE
		if dec > 0 {
			imp[n.feature] += dec
		}
		walk(n.left)
		walk(n.right)
	}
	walk(t.root)
}

// ForestOptions controls the random-forest regressor.
type ForestOptions struct {
	Trees int
	Tree  TreeOptions
	// Features drawn per split; 0 means max(1, nFeat/3)
	MTry int
	// Fixed-size random subsample of the input, bounding runtime on long
	// half-hourly records; 0 keeps all rows
	Subsample int
	Seed      int64
	Parallel  bool
}

// RandomForest is a bootstrap ensemble of regression trees predicting the
// absolute normalized error from driver variables.
type RandomForest struct {
	trees    []*RegressionTree
	FeatName []string
}

// FitRandomForest bootstraps rows (within the configured subsample) and fits
// opts.Trees trees on a worker pool.
func FitRandomForest(X [][]float64, y []float64, featNames []string, opts ForestOptions) (*RandomForest, error) {
	if len(X) != len(y) || len(X) == 0 {
		return nil, fmt.Errorf("%w: need equal non-empty rows and targets (%d vs %d)", ErrInvalidInput, len(X), len(y))
	}
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	if opts.MTry <= 0 {
		opts.MTry = len(featNames) / 3
		if opts.MTry < 1 {
			opts.MTry = 1
		}
	}
	if opts.Tree.MaxDepth <= 0 {
		opts.Tree.MaxDepth = 8
	}

	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	master := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0xbf58476d1ce4e5b9))

	// Bound runtime with one fixed random subsample shared by all trees.
	rows := make([]int, len(X))
	for i := range rows {
		rows[i] = i
	}
	if opts.Subsample > 0 && opts.Subsample < len(rows) {
		master.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		rows = rows[:opts.Subsample]
	}
	subX := make([][]float64, len(rows))
	subY := make([]float64, len(rows))
	for k, i := range rows {
		subX[k] = X[i]
		subY[k] = y[i]
	}

	seeds := make([]uint64, opts.Trees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	forest := &RandomForest{
		trees:    make([]*RegressionTree, opts.Trees),
		FeatName: featNames,
	}

	fitOne := func(b int) error {
		rng := rand.New(rand.NewPCG(seeds[b], seeds[b]^0x94d049bb133111eb))
		bootX := make([][]float64, len(subX))
		bootY := make([]float64, len(subY))
		for i := range bootX {
			j := rng.IntN(len(subX))
			bootX[i] = subX[j]
			bootY[i] = subY[j]
		}
		t, err := fitTree(bootX, bootY, featNames, treeFitParams{
			opts: opts.Tree,
			mtry: opts.MTry,
			rng:  rng,
		})
		if err != nil {
			return err
		}
		forest.trees[b] = t
		return nil
	}

	if !opts.Parallel {
		for b := 0; b < opts.Trees; b++ {
			if err := fitOne(b); err != nil {
				return nil, err
			}
		}
		return forest, nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > opts.Trees {
		numWorkers = opts.Trees
	}
	jobs := make(chan int)
	errCh := make(chan error, opts.Trees)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for b := range jobs {
				if err := fitOne(b); err != nil {
					errCh <- err
				}
			}
		}()
	}
	for b := 0; b < opts.Trees; b++ {
		jobs <- b
	}
	close(jobs)
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}
	return forest, nil
}

// Predict averages the trees for one driver row.
func (f *RandomForest) Predict(row []float64) float64 {
	sum := 0.0
	for _, t := range f.trees {
		sum += t.Predict(row)
	}
	return sum / float64(len(f.trees))
}

// Importance returns per-variable importance: total SSE decrease attributed
// to each feature across all trees, normalized to sum to 1.
func (f *RandomForest) Importance() []float64 {
	imp := make([]float64, len(f.FeatName))
	for _, t := range f.trees {
		t.accumImportance(imp)
	}
	total := 0.0
	for _, v := range imp {
		total += v
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}

// PartialDependence traces the marginal effect of one driver: for each grid
// value the feature is clamped across all rows and the forest predictions
// averaged, holding the other drivers at their observed distribution.
func (f *RandomForest) PartialDependence(feature int, grid []float64, X [][]float64) ([]float64, error) {
	if feature < 0 || feature >= len(f.FeatName) {
		return nil, fmt.Errorf("%w: feature %d outside [0,%d)", ErrInvalidInput, feature, len(f.FeatName))
	}
	if len(X) == 0 || len(grid) == 0 {
		return nil, fmt.Errorf("%w: need rows and a grid", ErrInvalidInput)
	}
	out := make([]float64, len(grid))
	row := make([]float64, len(f.FeatName))
	for g, v := range grid {
		sum := 0.0
		for _, r := range X {
			copy(row, r)
			row[feature] = v
			sum += f.Predict(row)
		}
		out[g] = sum / float64(len(X))
	}
	return out, nil
}

// FeatureGrid returns an evenly spaced grid spanning the observed range of
// one driver, for partial-dependence curves.
func FeatureGrid(X [][]float64, feature, points int) ([]float64, error) {
	if len(X) == 0 || points < 2 {
		return nil, fmt.Errorf("%w: need rows and at least 2 grid points", ErrInvalidInput)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range X {
		v := r[feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, points)
	step := (hi - lo) / float64(points-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	return out, nil
}
