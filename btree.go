package kdb

// BTree is a handle on a single table's tree: a Pager plus the PageNum of
// the tree's current root. Splitting the root changes that
// PageNum; onRootChange, if set, is invoked so the caller (the catalog,
// for a user table) can persist the new root.
type BTree struct {
	pager        *Pager
	root         PageNum
	logger       Logger
	onRootChange func(newRoot PageNum) error
}

// OpenBTree constructs a handle on the tree rooted at root. onRootChange
// may be nil. The catalog tree passes a callback that moves its new root
// back onto page 0, where the catalog root is pinned.
func OpenBTree(pager *Pager, root PageNum, logger Logger, onRootChange func(PageNum) error) *BTree {
	if logger == nil {
		logger = discardLogger{}
	}
	return &BTree{pager: pager, root: root, logger: logger, onRootChange: onRootChange}
}

// Root returns the tree's current root PageNum.
func (t *BTree) Root() PageNum { return t.root }

func (t *BTree) loadNode(n PageNum) (*Node, error) {
	page, err := t.pager.GetPage(n)
	if err != nil {
		return nil, err
	}
	switch page.nodeType() {
	case NodeTypeLeaf, NodeTypeInternal:
		return wrapNode(page), nil
	default:
		return nil, ErrCorruptNode
	}
}

func (t *BTree) findLeaf(key uint64) (*Node, error) {
	node, err := t.loadNode(t.root)
	if err != nil {
		return nil, err
	}
	for !node.IsLeaf() {
		child := node.FindChild(key)
		node, err = t.loadNode(child)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Search descends to key's leaf and returns a copy of its data, or
// (nil, false, nil) if the key is absent.
func (t *BTree) Search(key uint64) ([]byte, bool, error) {
	leaf, err := t.findLeaf(key)
	if err != nil {
		return nil, false, err
	}
	idx, exact := leaf.FindCell(key)
	if !exact {
		return nil, false, nil
	}
	_, data := leaf.Cell(idx)
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Insert places (key, data) into the tree, splitting nodes as needed.
// Inserting an already-present key fails with ErrDuplicateKey without
// mutating anything. There are no overflow pages, so a cell too large to
// ever fit an empty leaf fails with ErrOverflow instead of being accepted
// and later corrupting a split.
func (t *BTree) Insert(key uint64, data []byte) error {
	if t.pager.readOnly {
		return ErrReadOnly
	}
	leaf, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	t.pager.Pin(leaf.PageNum())
	defer t.pager.Unpin(leaf.PageNum())

	if len(data) > leaf.MaxCellData() {
		return ErrOverflow
	}

	idx, exact := leaf.FindCell(key)
	if exact {
		return ErrDuplicateKey
	}

	if !leaf.IsFull(len(data)) {
		leaf.InsertCell(idx, key, data)
		return nil
	}

	return t.splitLeaf(leaf, key, data, idx)
}

type leafCell struct {
	key  uint64
	data []byte
}

// splitLeaf distributes leaf's existing cells plus the new (key, data)
// pair across leaf (kept, now the left half) and a freshly allocated
// sibling (the right half), then propagates the split upward.
func (t *BTree) splitLeaf(leaf *Node, newKey uint64, newData []byte, insertIdx int) error {
	numCells := leaf.NumCells()
	combined := make([]leafCell, 0, numCells+1)
	for i := 0; i < numCells; i++ {
		if i == insertIdx {
			combined = append(combined, leafCell{newKey, newData})
		}
		k, d := leaf.Cell(i)
		dCopy := make([]byte, len(d))
		copy(dCopy, d)
		combined = append(combined, leafCell{k, dCopy})
	}
	if insertIdx == numCells {
		combined = append(combined, leafCell{newKey, newData})
	}

	m := len(combined)
	splitPoint := (m + 1) / 2 // ceil((M+1)/2) where M = numCells
	leftEntries := combined[:splitPoint]
	rightEntries := combined[splitPoint:]

	wasRoot := leaf.IsRoot()
	parentNum := leaf.Parent()

	leaf.page.setNumCells(0)
	leaf.page.setAllocPtr(uint16(usablePageSize))
	for _, e := range leftEntries {
		idx, _ := leaf.FindCell(e.key)
		leaf.InsertCell(idx, e.key, e.data)
	}

	rNum, rPage, err := t.pager.NewPage()
	if err != nil {
		return err
	}
	t.pager.Pin(rNum)
	defer t.pager.Unpin(rNum)
	right := InitLeaf(rPage, parentNum, false)
	for _, e := range rightEntries {
		idx, _ := right.FindCell(e.key)
		right.InsertCell(idx, e.key, e.data)
	}

	sep := leftEntries[len(leftEntries)-1].key
	t.logger.Info("leaf split", "leaf", leaf.PageNum(), "right", rNum, "sep", sep)

	if wasRoot {
		return t.createNewRoot(leaf, sep, right)
	}
	return t.promoteAfterSplit(leaf, sep, right)
}

// createNewRoot allocates a fresh internal root with a single entry
// (left, sep) and right_child = right, demoting both left and right from
// root status.
func (t *BTree) createNewRoot(left *Node, sep uint64, right *Node) error {
	rootNum, rootPage, err := t.pager.NewPage()
	if err != nil {
		return err
	}
	t.pager.Pin(rootNum)
	defer t.pager.Unpin(rootNum)
	root := InitInternal(rootPage, rootNum, true)
	root.InsertEntry(left.PageNum(), sep)
	root.SetRightChild(right.PageNum())

	left.SetIsRoot(false)
	left.SetParent(rootNum)
	right.SetIsRoot(false)
	right.SetParent(rootNum)

	t.root = rootNum
	t.logger.Info("root split", "newRoot", rootNum, "sep", sep)

	if t.onRootChange != nil {
		return t.onRootChange(rootNum)
	}
	return nil
}

// promoteAfterSplit records, in left's parent, that left's subtree now
// tops out at leftMax and that right is a new sibling holding the keys
// left used to hold above leftMax. If left was referenced by an explicit
// parent entry, that entry's key is lowered to leftMax and a new entry
// (right, <left's old bound>) is inserted immediately after it. If left
// was the parent's right_child (unbounded above), a new entry (left,
// leftMax) is inserted and right becomes the new right_child. Either way
// the parent gains exactly one entry; if that overflows it, the parent
// splits too.
func (t *BTree) promoteAfterSplit(left *Node, leftMax uint64, right *Node) error {
	if left.IsRoot() {
		return t.createNewRoot(left, leftMax, right)
	}

	parent, err := t.loadNode(left.Parent())
	if err != nil {
		return err
	}
	t.pager.Pin(parent.PageNum())
	defer t.pager.Unpin(parent.PageNum())
	right.SetParent(parent.PageNum())

	idx := -1
	for i := 0; i < parent.NumKeys(); i++ {
		c, _ := parent.EntryAt(i)
		if c == left.PageNum() {
			idx = i
			break
		}
	}

	if !parent.IsFullInternal() {
		if idx >= 0 {
			_, oldKey := parent.EntryAt(idx)
			parent.SetEntryKey(idx, leftMax)
			parent.InsertEntry(right.PageNum(), oldKey)
		} else {
			parent.InsertEntry(left.PageNum(), leftMax)
			parent.SetRightChild(right.PageNum())
		}
		return nil
	}

	return t.splitInternal(parent, left, leftMax, right, idx)
}

type btreeEntry struct {
	child PageNum
	key   uint64
}

func insertEntrySorted(entries []btreeEntry, e btreeEntry) []btreeEntry {
	i := 0
	for i < len(entries) && entries[i].key < e.key {
		i++
	}
	out := make([]btreeEntry, 0, len(entries)+1)
	out = append(out, entries[:i]...)
	out = append(out, e)
	out = append(out, entries[i:]...)
	return out
}

// splitInternal splits an internal node that has become full while
// absorbing the pending (left, leftMax, right) promotion from the level
// below, promoting the median key to node's parent.
func (t *BTree) splitInternal(node *Node, left *Node, leftMax uint64, right *Node, idx int) error {
	existing := make([]btreeEntry, node.NumKeys())
	for i := range existing {
		c, k := node.EntryAt(i)
		existing[i] = btreeEntry{c, k}
	}

	var combined []btreeEntry
	var virtualRightChild PageNum
	if idx >= 0 {
		oldKey := existing[idx].key
		existing[idx] = btreeEntry{left.PageNum(), leftMax}
		combined = insertEntrySorted(existing, btreeEntry{right.PageNum(), oldKey})
		virtualRightChild = node.RightChild()
	} else {
		combined = insertEntrySorted(existing, btreeEntry{left.PageNum(), leftMax})
		virtualRightChild = right.PageNum()
	}

	m := len(combined)
	medianIdx := m / 2
	median := combined[medianIdx]
	leftEntries := combined[:medianIdx]
	rightEntries := combined[medianIdx+1:]

	wasRoot := node.IsRoot()
	parentOfNode := node.Parent()

	node.page.setNumKeys(0)
	for _, e := range leftEntries {
		node.InsertEntry(e.child, e.key)
	}
	node.SetRightChild(median.child)

	r2Num, r2Page, err := t.pager.NewPage()
	if err != nil {
		return err
	}
	t.pager.Pin(r2Num)
	defer t.pager.Unpin(r2Num)
	r2 := InitInternal(r2Page, parentOfNode, false)
	for _, e := range rightEntries {
		r2.InsertEntry(e.child, e.key)
	}
	r2.SetRightChild(virtualRightChild)

	for _, e := range rightEntries {
		if err := t.reparentChild(e.child, r2Num); err != nil {
			return err
		}
	}
	if err := t.reparentChild(virtualRightChild, r2Num); err != nil {
		return err
	}

	t.logger.Info("internal split", "node", node.PageNum(), "right", r2Num, "median", median.key)

	if wasRoot {
		return t.createNewRoot(node, median.key, r2)
	}
	return t.promoteAfterSplit(node, median.key, r2)
}

func (t *BTree) reparentChild(child PageNum, newParent PageNum) error {
	page, err := t.pager.GetPage(child)
	if err != nil {
		return err
	}
	page.setParent(newParent)
	return nil
}

// leftmostLeaf descends from the root via the leftmost available child at
// every level.
func (t *BTree) leftmostLeaf() (*Node, error) {
	node, err := t.loadNode(t.root)
	if err != nil {
		return nil, err
	}
	for !node.IsLeaf() {
		var child PageNum
		if node.NumKeys() > 0 {
			child, _ = node.EntryAt(0)
		} else {
			child = node.RightChild()
		}
		node, err = t.loadNode(child)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// nextLeafAfter returns the leaf immediately following leaf in key order,
// found by climbing the parent chain to the nearest ancestor where leaf's
// path was not the rightmost branch, then descending leftmost from there.
// Parent pointers are used for this climb; there are no sibling pointers.
// Returns (nil, nil) when leaf is the last leaf in the tree.
func (t *BTree) nextLeafAfter(leaf *Node) (*Node, error) {
	child := leaf
	for {
		if child.IsRoot() {
			return nil, nil
		}
		parent, err := t.loadNode(child.Parent())
		if err != nil {
			return nil, err
		}

		idx := -1
		for i := 0; i < parent.NumKeys(); i++ {
			c, _ := parent.EntryAt(i)
			if c == child.PageNum() {
				idx = i
				break
			}
		}

		if idx == -1 {
			// child was parent's right_child: no sibling at this level.
			child = parent
			continue
		}

		var siblingPage PageNum
		if idx+1 < parent.NumKeys() {
			siblingPage, _ = parent.EntryAt(idx + 1)
		} else {
			siblingPage = parent.RightChild()
		}

		node, err := t.loadNode(siblingPage)
		if err != nil {
			return nil, err
		}
		for !node.IsLeaf() {
			var c PageNum
			if node.NumKeys() > 0 {
				c, _ = node.EntryAt(0)
			} else {
				c = node.RightChild()
			}
			node, err = t.loadNode(c)
			if err != nil {
				return nil, err
			}
		}
		return node, nil
	}
}
