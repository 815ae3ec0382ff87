package bitstream

import (
	"container/heap"
	"fmt"
)

// Code is a huffman codeword. Bit 0 of Bits is the first bit walked from the
// root, where a set bit selects the right child.
type Code struct {
	Bits uint32
	Len  uint
}

type huffmanNode struct {
	weight int
	value  int
	left   int32
	right  int32
}

func (n *huffmanNode) leaf() bool { return n.left < 0 }

// HuffmanTree is an immutable minimal-redundancy prefix code over the symbols
// 0..n-1. It holds no per-read state, so a single tree may be shared by any
// number of concurrent readers.
type HuffmanTree struct {
	nodes []huffmanNode
	root  int32
	codes []Code
}

// NewHuffmanTree builds the tree for the given per-symbol weights.
//
// Zero weights are treated as one so every symbol receives a codeword. Ties
// between equal weights are broken in favour of the higher symbol value, and
// the first node popped becomes the left child. Both rules are part of the
// wire format: any other choice yields a different, incompatible code.
func NewHuffmanTree(weights []int) (*HuffmanTree, error) {
	if len(weights) == 0 {
		return nil, ErrHuffmanEmpty
	}

	t := &HuffmanTree{
		nodes: make([]huffmanNode, 0, 2*len(weights)-1),
	}
	h := &nodeHeap{nodes: &t.nodes}
	for v, w := range weights {
		if w == 0 {
			w = 1
		}
		t.nodes = append(t.nodes, huffmanNode{weight: w, value: v, left: -1, right: -1})
		h.idx = append(h.idx, int32(v))
	}
	heap.Init(h)

	next := len(weights)
	for h.Len() > 1 {
		a := heap.Pop(h).(int32)
		b := heap.Pop(h).(int32)
		t.nodes = append(t.nodes, huffmanNode{
			weight: t.nodes[a].weight + t.nodes[b].weight,
			value:  next,
			left:   a,
			right:  b,
		})
		next++
		heap.Push(h, int32(len(t.nodes)-1))
	}
	t.root = heap.Pop(h).(int32)

	t.codes = make([]Code, len(weights))
	if err := t.assign(t.root, Code{}); err != nil {
		return nil, err
	}
	if err := t.verifyPrefixFree(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *HuffmanTree) assign(i int32, c Code) error {
	n := &t.nodes[i]
	if n.leaf() {
		t.codes[n.value] = c
		return nil
	}
	if c.Len >= 32 {
		return ErrHuffmanCodeTooLong
	}
	if err := t.assign(n.left, Code{Bits: c.Bits, Len: c.Len + 1}); err != nil {
		return err
	}
	return t.assign(n.right, Code{Bits: c.Bits | 1<<c.Len, Len: c.Len + 1})
}

// verifyPrefixFree checks that no codeword is a prefix of another.
func (t *HuffmanTree) verifyPrefixFree() error {
	for i, a := range t.codes {
		for j, b := range t.codes {
			if i == j || a.Len > b.Len {
				continue
			}
			mask := uint32(1)<<a.Len - 1
			if b.Bits&mask == a.Bits {
				return fmt.Errorf("%w: symbol %d prefixes symbol %d", ErrHuffmanNotPrefixFree, i, j)
			}
		}
	}
	return nil
}

// Symbols returns the number of symbols in the code.
func (t *HuffmanTree) Symbols() int { return len(t.codes) }

// Code returns the codeword of symbol v.
func (t *HuffmanTree) Code(v int) Code { return t.codes[v] }

// ReadSymbol walks t from the root, consuming one bit per level, and returns
// the symbol at the leaf reached. It returns -1 if the stream ends first.
func (r *Reader) ReadSymbol(t *HuffmanTree) int {
	n := &t.nodes[t.root]
	for !n.leaf() {
		b := r.ReadBoolean()
		if r.err != nil {
			return -1
		}
		if b {
			n = &t.nodes[n.right]
		} else {
			n = &t.nodes[n.left]
		}
	}
	return n.value
}

// nodeHeap orders node indices by weight, then by descending value.
type nodeHeap struct {
	nodes *[]huffmanNode
	idx   []int32
}

func (h *nodeHeap) Len() int { return len(h.idx) }
func (h *nodeHeap) Less(i, j int) bool {
	a, b := &(*h.nodes)[h.idx[i]], &(*h.nodes)[h.idx[j]]
	if a.weight == b.weight {
		return a.value >= b.value
	}
	return a.weight < b.weight
}
func (h *nodeHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *nodeHeap) Push(x any)    { h.idx = append(h.idx, x.(int32)) }
func (h *nodeHeap) Pop() any {
	old := h.idx
	n := len(old)
	x := old[n-1]
	h.idx = old[:n-1]
	return x
}
