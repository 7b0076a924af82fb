package heap

import "math/bits"

const (
	// minBlockShift is log2 of the smallest block handed out by Buddy.
	minBlockShift = 3

	// maxOrder bounds the size of a single block to 1 << (maxOrder-1).
	maxOrder = 48

	maxBlockSize = uintptr(1) << (maxOrder - 1)
)

// Buddy is a binary buddy allocator over address ranges. It only does the
// bookkeeping; it never touches the memory it manages. Free lists are kept
// per block order and used as stacks so the most recently freed block of a
// size is reused first.
type Buddy struct {
	freeLists [maxOrder][]uintptr

	// total is the number of bytes added via AddRange.
	total uintptr

	// user is the sum of the sizes requested by callers.
	user uintptr

	// allocated is the sum of the (rounded-up) block sizes handed out.
	allocated uintptr
}

// AddRange hands [start, end) over to the allocator. The range is trimmed to
// minimum block alignment and split into naturally aligned power-of-two
// blocks.
func (b *Buddy) AddRange(start, end uintptr) {
	const minBlock = uintptr(1) << minBlockShift

	start = (start + minBlock - 1) &^ (minBlock - 1)
	end &^= minBlock - 1

	for start < end && end-start >= minBlock {
		size := uintptr(1) << (maxOrder - 1)
		if start != 0 {
			if align := start & -start; align < size {
				size = align
			}
		}

		if largest := prevPowerOfTwo(end - start); largest < size {
			size = largest
		}

		order := orderOf(size)
		b.freeLists[order] = append(b.freeLists[order], start)
		b.total += size
		start += size
	}
}

// Alloc reserves a block that can hold size bytes at the requested
// alignment. It returns false if no block is large enough.
func (b *Buddy) Alloc(size, align uintptr) (uintptr, bool) {
	if size > maxBlockSize || align > maxBlockSize {
		return 0, false
	}

	blockSize := blockSizeFor(size, align)
	class := orderOf(blockSize)
	if class >= maxOrder {
		return 0, false
	}

	for order := class; order < maxOrder; order++ {
		if len(b.freeLists[order]) == 0 {
			continue
		}

		// Split the block until it matches the requested class; the
		// upper halves go back to the free lists.
		for ; order > class; order-- {
			block := b.pop(order)
			b.freeLists[order-1] = append(b.freeLists[order-1], block+(uintptr(1)<<(order-1)), block)
		}

		b.user += size
		b.allocated += blockSize
		return b.pop(class), true
	}

	return 0, false
}

// Free returns a block obtained by Alloc with the same size and alignment
// and merges it with its buddy for as long as the buddy is free.
func (b *Buddy) Free(addr, size, align uintptr) {
	blockSize := blockSizeFor(size, align)
	class := orderOf(blockSize)

	b.user -= size
	b.allocated -= blockSize

	block := addr
	for order := class; order < maxOrder; order++ {
		buddy := block ^ (uintptr(1) << order)
		if order == maxOrder-1 || !b.remove(order, buddy) {
			b.freeLists[order] = append(b.freeLists[order], block)
			return
		}

		if buddy < block {
			block = buddy
		}
	}
}

// Total returns the number of bytes managed by the allocator.
func (b *Buddy) Total() uintptr { return b.total }

// User returns the number of bytes requested by outstanding allocations.
func (b *Buddy) User() uintptr { return b.user }

// Allocated returns the number of bytes reserved by outstanding allocations.
func (b *Buddy) Allocated() uintptr { return b.allocated }

func (b *Buddy) pop(order int) uintptr {
	list := b.freeLists[order]
	block := list[len(list)-1]
	b.freeLists[order] = list[:len(list)-1]
	return block
}

func (b *Buddy) remove(order int, block uintptr) bool {
	list := b.freeLists[order]
	for index, candidate := range list {
		if candidate == block {
			list[index] = list[len(list)-1]
			b.freeLists[order] = list[:len(list)-1]
			return true
		}
	}

	return false
}

func blockSizeFor(size, align uintptr) uintptr {
	blockSize := uintptr(1) << minBlockShift
	if size > blockSize {
		blockSize = nextPowerOfTwo(size)
	}
	if align > blockSize {
		blockSize = nextPowerOfTwo(align)
	}

	return blockSize
}

func orderOf(size uintptr) int {
	return bits.TrailingZeros64(uint64(size))
}

func nextPowerOfTwo(v uintptr) uintptr {
	if v <= 1 {
		return 1
	}

	return uintptr(1) << (64 - bits.LeadingZeros64(uint64(v-1)))
}

func prevPowerOfTwo(v uintptr) uintptr {
	return uintptr(1) << (63 - bits.LeadingZeros64(uint64(v)))
}
