package vm

import (
	"fmt"
	"sync"
)

// Heap stores size-tagged array blocks. A block at address a is Size(n)
// followed by n payload slots. Spawned machines share their parent's heap,
// so every access takes the lock.
type Heap struct {
	mu    sync.Mutex
	cells []Value
	limit int
}

// NewHeap creates an empty, unbounded heap.
func NewHeap() *Heap {
	return &Heap{}
}

// NewBoundedHeap creates an empty heap holding at most maxCells cells,
// block headers included. Zero means unbounded.
func NewBoundedHeap(maxCells int) *Heap {
	return &Heap{limit: maxCells}
}

// Alloc appends a block of n slots initialized to init and returns its
// address.
func (h *Heap) Alloc(n int32, init Value) (uint32, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeSize, n)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.limit > 0 && len(h.cells)+int(n)+1 > h.limit {
		return 0, fmt.Errorf("%w: %d cells requested, %d of %d in use", ErrHeapExhausted, int(n)+1, len(h.cells), h.limit)
	}
	addr := uint32(len(h.cells))
	h.cells = append(h.cells, Size(n))
	for i := int32(0); i < n; i++ {
		h.cells = append(h.cells, init)
	}
	return addr, nil
}

// Set writes v into slot idx of the block at addr.
func (h *Heap) Set(addr uint32, idx int32, v Value) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	slot, err := h.slot(addr, idx)
	if err != nil {
		return err
	}
	h.cells[slot] = v
	return nil
}

// Get reads slot idx of the block at addr.
func (h *Heap) Get(addr uint32, idx int32) (Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	slot, err := h.slot(addr, idx)
	if err != nil {
		return Undef, err
	}
	return h.cells[slot], nil
}

// Len returns the number of cells in use, headers included.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cells)
}

func (h *Heap) slot(addr uint32, idx int32) (int, error) {
	if int(addr) >= len(h.cells) || h.cells[addr].Kind != KindSize {
		return 0, fmt.Errorf("%w: %d", ErrBadAddress, addr)
	}
	n := h.cells[addr].I32()
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("%w: index %d, length %d", ErrIndexRange, idx, n)
	}
	return int(addr) + 1 + int(idx), nil
}
