package hawk

// gcNode is the intrusive doubly-linked-list node every GC-participating
// aggregate embeds, plus the bookkeeping fields the collection
// algorithm (spec.md §4.4) needs during a trace: gcRefs starts as a
// copy of the real refcount and is decremented for every internal
// reference found, so what's left distinguishes roots from garbage.
type gcNode struct {
	prev, next *gcNode
	gen        int
	gcRefs     int32
	state      gcState
	chained    bool
}

type gcState int

const (
	gcStateNone gcState = iota
	gcStateMoved
	gcStateUnreachable
)

func (n *gcNode) gc() *gcNode { return n }

// gcOwner recovers the aggregate Value that embeds a given gcNode, so
// the collector can call back into MapVal/ArrayVal methods generically.
type gcOwner interface {
	aggregate
	Refcounted
	gc() *gcNode
}

const numGenerations = 3

// generation is a doubly-linked list (sentinel-headed) of
// GC-participating cells, plus the pressure/threshold pair spec.md
// §4.4 describes.
type generation struct {
	head      gcNode // sentinel; head.next/head.prev form the ring
	pressure  int
	threshold int
}

func newGeneration(threshold int) *generation {
	g := &generation{threshold: threshold}
	g.head.next = &g.head
	g.head.prev = &g.head
	return g
}

func (g *generation) pushFront(n *gcNode) {
	n.next = g.head.next
	n.prev = &g.head
	g.head.next.prev = n
	g.head.next = n
}

func (n *gcNode) unlink() {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

func (g *generation) isEmpty() bool { return g.head.next == &g.head }

// spliceInto moves every node out of g into dst, preserving relative
// order (used by collect() step 1 to merge younger generations into
// the one being collected).
func (g *generation) spliceInto(dst *generation) {
	for n := g.head.next; n != &g.head; {
		next := n.next
		n.unlink()
		dst.pushFront(n)
		n = next
	}
}

// GC is the generational cycle collector scoped to Map/Array values
// (spec.md §4.4). One GC belongs to exactly one Runtime.
type GC struct {
	gens    [numGenerations]*generation
	owners  map[*gcNode]gcOwner
}

// NewGC constructs a collector with the default thresholds: young
// generations collect more often than old ones, per the glossary's
// "GC generation" entry.
func NewGC() *GC {
	gc := &GC{owners: map[*gcNode]gcOwner{}}
	gc.gens[0] = newGeneration(64)
	gc.gens[1] = newGeneration(256)
	gc.gens[2] = newGeneration(1024)
	return gc
}

// register enrolls a freshly created Map/Array into generation 0 and
// sets its gc-chained flag (spec.md §3.1/§4.3), triggering an
// automatic collection if generation 0's pressure exceeds threshold.
func (gc *GC) register(v gcOwner) {
	n := v.gc()
	n.gen = 0
	n.chained = true
	gc.gens[0].pushFront(n)
	gc.owners[n] = v
	gc.gens[0].pressure++
	if gc.gens[0].pressure > gc.gens[0].threshold {
		gc.Collect(0)
		if gc.gens[0].pressure > gc.gens[0].threshold {
			gc.Collect(numGenerations - 1)
		}
	}
}

// unregister clears the gc-chained flag and unlinks the node (spec.md
// §3.1). Nothing calls it at present: DecRefVal reaching zero leaves
// an aggregate chained, and the next collection covering its
// generation frees it.
func (gc *GC) unregister(v gcOwner) {
	n := v.gc()
	if !n.chained {
		return
	}
	n.chained = false
	delete(gc.owners, n)
	n.unlink()
}

// GetThreshold / SetThreshold / GetPressure implement the
// gc_get_threshold/gc_set_threshold/gc_get_pressure API (spec.md §4.4
// "User API").
func (gc *GC) GetThreshold(gen int) int    { return gc.gens[gen].threshold }
func (gc *GC) SetThreshold(gen int, n int) { gc.gens[gen].threshold = n }
func (gc *GC) GetPressure(gen int) int     { return gc.gens[gen].pressure }

// GCRefs implements the per-value gcrefs(v) API: the current refcount
// of v if it's a heap cell, else 0.
func GCRefs(v Value) int32 {
	if rc, ok := v.(Refcounted); ok {
		return rc.header().Refs()
	}
	return 0
}

// Collect runs collect(gen) per spec.md §4.4. gen=-1 means "auto": run
// generation 0 only, mirroring the allocation hook's first attempt.
func (gc *GC) Collect(gen int) {
	if gen < 0 {
		gen = 0
	}
	if gen >= numGenerations {
		gen = numGenerations - 1
	}

	target := gc.gens[gen]

	// Step 1: splice all younger generations into the target's list.
	for k := 0; k < gen; k++ {
		gc.gens[k].spliceInto(target)
		gc.gens[k].pressure = 0
	}
	target.pressure = 0

	if target.isEmpty() {
		return
	}

	// Collect the node set into a slice so we can walk it safely
	// while unlinking members.
	var candidates []*gcNode
	for n := target.head.next; n != &target.head; n = n.next {
		candidates = append(candidates, n)
	}

	// Step 2: trace. gcRefs starts as a copy of the real refcount,
	// then we subtract one for every internal Map/Array reference
	// found among the candidate set.
	for _, n := range candidates {
		owner := gc.owners[n]
		n.gcRefs = owner.header().refs
		n.state = gcStateNone
	}
	for _, n := range candidates {
		owner := gc.owners[n]
		for _, child := range owner.children() {
			if childAgg, ok := child.(gcOwner); ok {
				cn := childAgg.gc()
				if cn.chained {
					cn.gcRefs--
				}
			}
		}
	}

	// Step 3: mark reachables (BFS from any node whose gcRefs>0,
	// meaning it's referenced from outside the candidate set).
	reachable := map[*gcNode]bool{}
	var stack []*gcNode
	for _, n := range candidates {
		if n.gcRefs > 0 {
			stack = append(stack, n)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[n] {
			continue
		}
		reachable[n] = true
		n.state = gcStateMoved
		owner := gc.owners[n]
		for _, child := range owner.children() {
			if childAgg, ok := child.(gcOwner); ok {
				cn := childAgg.gc()
				if cn.chained && !reachable[cn] {
					stack = append(stack, cn)
				}
			}
		}
	}

	// Step 4: whatever isn't reachable is garbage. Mark it, then
	// finalize in two passes so cycles don't double-free: first
	// drop element refs (letting a peer's element-free see
	// gcStateUnreachable and become a no-op for siblings), then
	// unlink/free the shells.
	var unreachable []*gcNode
	for _, n := range candidates {
		if !reachable[n] {
			n.state = gcStateUnreachable
			unreachable = append(unreachable, n)
		}
	}
	for _, n := range unreachable {
		owner := gc.owners[n]
		owner.forEachChildSlot(func(child Value) {
			if childAgg, ok := child.(gcOwner); ok {
				if childAgg.gc().state == gcStateUnreachable {
					return // peer in the same cycle: skip, will be freed below
				}
			}
			DecRefVal(child)
		})
	}
	for _, n := range unreachable {
		n.chained = false
		delete(gc.owners, n)
	}

	// Step 5: move survivors into gen+1 (or keep in place if gen is
	// last), rebuilding the list since we consumed it into `candidates`.
	target.head.next = &target.head
	target.head.prev = &target.head

	dest := target
	if gen+1 < numGenerations {
		dest = gc.gens[gen+1]
	}
	for _, n := range candidates {
		if n.state == gcStateMoved {
			if gen+1 < numGenerations {
				n.gen = gen + 1
			} else {
				n.gen = gen
			}
			dest.pushFront(n)
		}
	}
}
