package engine

// priceTree is a red-black tree of price levels keyed by price. It
// backs one side of the book: O(log n) level lookup, insert and delete,
// O(log n) best-price access without scanning levels.
type priceTree struct {
	root       *treeNode
	size       int
	descending bool // bids iterate high to low, asks low to high
}

type treeNode struct {
	price  int64
	level  *priceLevel
	red    bool
	left   *treeNode
	right  *treeNode
	parent *treeNode
}

func newPriceTree(descending bool) *priceTree {
	return &priceTree{descending: descending}
}

func (t *priceTree) len() int { return t.size }

// get returns the level at price, or nil.
func (t *priceTree) get(price int64) *priceLevel {
	n := t.find(price)
	if n == nil {
		return nil
	}
	return n.level
}

func (t *priceTree) find(price int64) *treeNode {
	n := t.root
	for n != nil {
		switch {
		case price == n.price:
			return n
		case price < n.price:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

// insert adds a level for a price not yet present in the tree.
func (t *priceTree) insert(level *priceLevel) {
	node := &treeNode{price: level.price, level: level, red: true}

	if t.root == nil {
		node.red = false
		t.root = node
		t.size++
		return
	}

	cur := t.root
	var parent *treeNode
	for cur != nil {
		parent = cur
		if level.price == cur.price {
			cur.level = level
			return
		} else if level.price < cur.price {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}

	node.parent = parent
	if level.price < parent.price {
		parent.left = node
	} else {
		parent.right = node
	}
	t.size++
	t.insertFixup(node)
}

func (t *priceTree) insertFixup(n *treeNode) {
	for n != t.root && n.parent.red {
		if n.parent == n.parent.parent.left {
			uncle := n.parent.parent.right
			if uncle != nil && uncle.red {
				n.parent.red = false
				uncle.red = false
				n.parent.parent.red = true
				n = n.parent.parent
			} else {
				if n == n.parent.right {
					n = n.parent
					t.rotateLeft(n)
				}
				n.parent.red = false
				n.parent.parent.red = true
				t.rotateRight(n.parent.parent)
			}
		} else {
			uncle := n.parent.parent.left
			if uncle != nil && uncle.red {
				n.parent.red = false
				uncle.red = false
				n.parent.parent.red = true
				n = n.parent.parent
			} else {
				if n == n.parent.left {
					n = n.parent
					t.rotateRight(n)
				}
				n.parent.red = false
				n.parent.parent.red = true
				t.rotateLeft(n.parent.parent)
			}
		}
	}
	t.root.red = false
}

// remove deletes the level at price. Returns false if absent.
func (t *priceTree) remove(price int64) bool {
	n := t.find(price)
	if n == nil {
		return false
	}
	t.removeNode(n)
	t.size--
	return true
}

func (t *priceTree) removeNode(z *treeNode) {
	y := z
	yWasRed := y.red
	// x is the subtree taking the removed node's place; it may be nil,
	// so its parent is tracked separately for the fixup.
	var x, xParent *treeNode

	switch {
	case z.left == nil:
		x = z.right
		xParent = z.parent
		t.transplant(z, z.right)
	case z.right == nil:
		x = z.left
		xParent = z.parent
		t.transplant(z, z.left)
	default:
		y = minimum(z.right)
		yWasRed = y.red
		x = y.right
		if y.parent == z {
			xParent = y
		} else {
			xParent = y.parent
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.red = z.red
	}

	if !yWasRed {
		t.removeFixup(x, xParent)
	}
}

func (t *priceTree) transplant(u, v *treeNode) {
	switch {
	case u.parent == nil:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

// removeFixup restores the red-black invariants after deleting a black
// node. x carries the extra black and may be nil (nil children are
// black), so the walk uses parent explicitly instead of x.parent.
func (t *priceTree) removeFixup(x, parent *treeNode) {
	for x != t.root && (x == nil || !x.red) {
		if x == parent.left {
			w := parent.right
			if w.red {
				w.red = false
				parent.red = true
				t.rotateLeft(parent)
				w = parent.right
			}
			if (w.left == nil || !w.left.red) && (w.right == nil || !w.right.red) {
				w.red = true
				x = parent
				parent = x.parent
			} else {
				if w.right == nil || !w.right.red {
					w.left.red = false
					w.red = true
					t.rotateRight(w)
					w = parent.right
				}
				w.red = parent.red
				parent.red = false
				w.right.red = false
				t.rotateLeft(parent)
				x = t.root
			}
		} else {
			w := parent.left
			if w.red {
				w.red = false
				parent.red = true
				t.rotateRight(parent)
				w = parent.left
			}
			if (w.right == nil || !w.right.red) && (w.left == nil || !w.left.red) {
				w.red = true
				x = parent
				parent = x.parent
			} else {
				if w.left == nil || !w.left.red {
					w.right.red = false
					w.red = true
					t.rotateLeft(w)
					w = parent.left
				}
				w.red = parent.red
				parent.red = false
				w.left.red = false
				t.rotateRight(parent)
				x = t.root
			}
		}
	}
	if x != nil {
		x.red = false
	}
}

func (t *priceTree) rotateLeft(x *treeNode) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *priceTree) rotateRight(x *treeNode) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.right:
		x.parent.right = y
	default:
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func minimum(n *treeNode) *treeNode {
	for n.left != nil {
		n = n.left
	}
	return n
}

func maximum(n *treeNode) *treeNode {
	for n.right != nil {
		n = n.right
	}
	return n
}

// best returns the most competitive level for this side: the maximum
// price for bids, the minimum for asks. Nil when the side is empty.
func (t *priceTree) best() *priceLevel {
	if t.root == nil {
		return nil
	}
	if t.descending {
		return maximum(t.root).level
	}
	return minimum(t.root).level
}

// walk visits levels in matching order (bids high to low, asks low to
// high) until fn returns false.
func (t *priceTree) walk(fn func(level *priceLevel) bool) {
	if t.descending {
		walkDesc(t.root, fn)
	} else {
		walkAsc(t.root, fn)
	}
}

func walkAsc(n *treeNode, fn func(*priceLevel) bool) bool {
	if n == nil {
		return true
	}
	if !walkAsc(n.left, fn) {
		return false
	}
	if !fn(n.level) {
		return false
	}
	return walkAsc(n.right, fn)
}

func walkDesc(n *treeNode, fn func(*priceLevel) bool) bool {
	if n == nil {
		return true
	}
	if !walkDesc(n.right, fn) {
		return false
	}
	if !fn(n.level) {
		return false
	}
	return walkDesc(n.left, fn)
}
