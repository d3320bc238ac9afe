package matchmaking

import (
	"math"
	"sort"

	"github.com/rl-arena/rl-arena-matchmaker/pkg/geo"
)

// Split axes, in depth order.
const (
	axisRating = iota
	axisDeviation
	axisLatitude
	axisLongitude
	dimensions
)

const noNode = -1

// kmPerDegreeLat length of one degree of latitude on the reference sphere
const kmPerDegreeLat = 2 * math.Pi * geo.EarthRadiusKm / 360

type kdNode struct {
	player *WaitingPlayer
	left   int
	right  int
}

// SimilarityIndex 4-D tree over (rating, deviation, latitude, longitude).
// Nodes live in an arena slice and link to each other by index; freed slots are
// reused by later inserts. Keys equal on the split axis go right, so the
// invariant is left < node <= right along each node's axis.
//
// The index is not safe for concurrent use. The owning Matchmaker serializes access.
type SimilarityIndex struct {
	nodes []kdNode
	free  []int
	root  int
	byID  map[string]*WaitingPlayer
}

// NewSimilarityIndex 빈 인덱스 생성
func NewSimilarityIndex() *SimilarityIndex {
	return &SimilarityIndex{
		root: noNode,
		byID: make(map[string]*WaitingPlayer),
	}
}

func axisKey(p *WaitingPlayer, axis int) float64 {
	switch axis {
	case axisRating:
		return p.Rating
	case axisDeviation:
		return p.RatingDeviation
	case axisLatitude:
		return p.Latitude
	default:
		return p.Longitude
	}
}

// Insert adds p. Returns false if a player with the same ID is already indexed.
func (t *SimilarityIndex) Insert(p *WaitingPlayer) bool {
	if p == nil {
		panic("matchmaking: Insert called with nil player")
	}
	if _, exists := t.byID[p.ID]; exists {
		return false
	}

	idx := t.alloc(p)
	t.byID[p.ID] = p

	if t.root == noNode {
		t.root = idx
		return true
	}

	cur, depth := t.root, 0
	for {
		axis := depth % dimensions
		n := &t.nodes[cur]
		if axisKey(p, axis) < axisKey(n.player, axis) {
			if n.left == noNode {
				n.left = idx
				return true
			}
			cur = n.left
		} else {
			if n.right == noNode {
				n.right = idx
				return true
			}
			cur = n.right
		}
		depth++
	}
}

// Remove deletes exactly this player (pointer identity).
func (t *SimilarityIndex) Remove(p *WaitingPlayer) bool {
	if p == nil {
		panic("matchmaking: Remove called with nil player")
	}
	if t.byID[p.ID] != p {
		return false
	}

	root, removed := t.remove(t.root, p, 0)
	t.root = root
	if removed {
		delete(t.byID, p.ID)
	}
	return removed
}

// RemoveByPlayerID deletes the player with the given ID, if present.
func (t *SimilarityIndex) RemoveByPlayerID(id string) (*WaitingPlayer, bool) {
	p, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return p, t.Remove(p)
}

// ContainsPlayerID 플레이어 존재 여부
func (t *SimilarityIndex) ContainsPlayerID(id string) bool {
	_, ok := t.byID[id]
	return ok
}

// Get returns the indexed player with the given ID.
func (t *SimilarityIndex) Get(id string) (*WaitingPlayer, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Size 인덱스 크기
func (t *SimilarityIndex) Size() int {
	return len(t.byID)
}

// AllPlayers snapshot of the indexed players in tree order. Later mutations of the
// index do not affect the returned slice.
func (t *SimilarityIndex) AllPlayers() []*WaitingPlayer {
	players := make([]*WaitingPlayer, 0, len(t.byID))
	stack := make([]int, 0, 32)
	cur := t.root
	for cur != noNode || len(stack) > 0 {
		for cur != noNode {
			stack = append(stack, cur)
			cur = t.nodes[cur].left
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		players = append(players, t.nodes[cur].player)
		cur = t.nodes[cur].right
	}
	return players
}

// FindWithinRadius returns up to limit players other than target whose rating,
// deviation and great-circle distance are all within the given bounds, closest
// first. Closeness is the sum of squared per-axis differences, each normalized
// by its bound.
func (t *SimilarityIndex) FindWithinRadius(target *WaitingPlayer, ratingBound, deviationBound, distanceBoundKm float64, limit int) []*WaitingPlayer {
	if target == nil {
		panic("matchmaking: FindWithinRadius called with nil target")
	}
	if limit <= 0 || t.root == noNode {
		return nil
	}

	q := &radiusQuery{
		target:         target,
		ratingBound:    ratingBound,
		deviationBound: deviationBound,
		distanceBound:  distanceBoundKm,
	}
	q.axisBounds = [dimensions]float64{
		axisRating:    ratingBound,
		axisDeviation: deviationBound,
		axisLatitude:  latitudeBound(distanceBoundKm),
		axisLongitude: longitudeBound(target, distanceBoundKm),
	}

	t.search(t.root, 0, q)

	sort.Slice(q.found, func(i, j int) bool {
		if q.found[i].score != q.found[j].score {
			return q.found[i].score < q.found[j].score
		}
		return q.found[i].player.ID < q.found[j].player.ID
	})
	if len(q.found) > limit {
		q.found = q.found[:limit]
	}

	result := make([]*WaitingPlayer, len(q.found))
	for i, c := range q.found {
		result[i] = c.player
	}
	return result
}

type scoredPlayer struct {
	player *WaitingPlayer
	score  float64
}

type radiusQuery struct {
	target         *WaitingPlayer
	ratingBound    float64
	deviationBound float64
	distanceBound  float64
	axisBounds     [dimensions]float64
	found          []scoredPlayer
}

func (q *radiusQuery) consider(p *WaitingPlayer) {
	if p == q.target {
		return
	}
	dr := math.Abs(p.Rating - q.target.Rating)
	if dr > q.ratingBound {
		return
	}
	dd := math.Abs(p.RatingDeviation - q.target.RatingDeviation)
	if dd > q.deviationBound {
		return
	}
	dist := geo.Distance(p.Location(), q.target.Location())
	if dist > q.distanceBound {
		return
	}
	score := normSq(dr, q.ratingBound) + normSq(dd, q.deviationBound) + normSq(dist, q.distanceBound)
	q.found = append(q.found, scoredPlayer{player: p, score: score})
}

func normSq(v, bound float64) float64 {
	if bound <= 0 {
		return 0
	}
	r := v / bound
	return r * r
}

// search prunes a child only by the bound of the axis this node splits on.
func (t *SimilarityIndex) search(idx, depth int, q *radiusQuery) {
	if idx == noNode {
		return
	}
	n := t.nodes[idx]
	q.consider(n.player)

	axis := depth % dimensions
	diff := axisKey(q.target, axis) - axisKey(n.player, axis)
	bound := q.axisBounds[axis]

	if diff < 0 {
		t.search(n.left, depth+1, q)
		if -diff <= bound {
			t.search(n.right, depth+1, q)
		}
		return
	}
	t.search(n.right, depth+1, q)
	if diff <= bound {
		t.search(n.left, depth+1, q)
	}
}

// latitudeBound max latitude difference (degrees) of any point within distanceKm.
func latitudeBound(distanceKm float64) float64 {
	return widen(distanceKm / kmPerDegreeLat)
}

// longitudeBound max longitude difference (degrees) of any point within distanceKm
// of target. Returns +Inf when the search cap touches a pole or crosses the
// antimeridian, where longitude differences cannot bound distance.
func longitudeBound(target *WaitingPlayer, distanceKm float64) float64 {
	angular := distanceKm / geo.EarthRadiusKm
	if angular >= math.Pi/2 {
		return math.Inf(1)
	}
	if math.Abs(target.Latitude)+latitudeBound(distanceKm) >= 90 {
		return math.Inf(1)
	}

	ratio := math.Sin(angular) / math.Cos(target.Latitude*math.Pi/180)
	if ratio >= 1 {
		return math.Inf(1)
	}
	dLon := widen(math.Asin(ratio) * 180 / math.Pi)
	if target.Longitude-dLon < -180 || target.Longitude+dLon > 180 {
		return math.Inf(1)
	}
	return dLon
}

// widen pads a derived bound against floating point error.
func widen(deg float64) float64 {
	return deg*(1+1e-9) + 1e-12
}

func (t *SimilarityIndex) alloc(p *WaitingPlayer) int {
	n := kdNode{player: p, left: noNode, right: noNode}
	if k := len(t.free); k > 0 {
		idx := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[idx] = n
		return idx
	}
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

func (t *SimilarityIndex) release(idx int) {
	t.nodes[idx] = kdNode{left: noNode, right: noNode}
	t.free = append(t.free, idx)
}

// remove deletes target from the subtree at idx and returns the new subtree root.
// A deleted inner node takes the minimum of its right subtree along its own split
// axis; with no right subtree, the left subtree's minimum is used and the rest of
// the left subtree becomes the right subtree.
func (t *SimilarityIndex) remove(idx int, target *WaitingPlayer, depth int) (int, bool) {
	if idx == noNode {
		return noNode, false
	}
	axis := depth % dimensions
	n := &t.nodes[idx]

	if n.player == target {
		switch {
		case n.right != noNode:
			replacement := t.findMin(n.right, axis, depth+1)
			n.player = replacement
			n.right, _ = t.remove(n.right, replacement, depth+1)
		case n.left != noNode:
			replacement := t.findMin(n.left, axis, depth+1)
			n.player = replacement
			n.right, _ = t.remove(n.left, replacement, depth+1)
			n.left = noNode
		default:
			t.release(idx)
			return noNode, true
		}
		return idx, true
	}

	var removed bool
	if axisKey(target, axis) < axisKey(n.player, axis) {
		n.left, removed = t.remove(n.left, target, depth+1)
	} else {
		n.right, removed = t.remove(n.right, target, depth+1)
	}
	return idx, removed
}

// findMin player with the smallest key on axis in the subtree at idx.
func (t *SimilarityIndex) findMin(idx, axis, depth int) *WaitingPlayer {
	if idx == noNode {
		return nil
	}
	n := t.nodes[idx]
	if depth%dimensions == axis {
		if n.left == noNode {
			return n.player
		}
		return t.findMin(n.left, axis, depth+1)
	}

	best := n.player
	for _, child := range [2]int{n.left, n.right} {
		if c := t.findMin(child, axis, depth+1); c != nil && axisKey(c, axis) < axisKey(best, axis) {
			best = c
		}
	}
	return best
}
