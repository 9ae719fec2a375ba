package mm

// Size is one of the page sizes supported by the MMU. The set is closed;
// the hardware defines exactly three.
type Size uint8

const (
	Size4KiB Size = iota
	Size2MiB
	Size1GiB
)

// PageSizes lists the supported page sizes from largest to smallest.
var PageSizes = [...]Size{Size1GiB, Size2MiB, Size4KiB}

// Shift returns log2 of the page size in bytes.
func (s Size) Shift() uintptr {
	switch s {
	case Size1GiB:
		return 30
	case Size2MiB:
		return 21
	default:
		return PageShift
	}
}

// Bytes returns the page size in bytes.
func (s Size) Bytes() uintptr {
	return 1 << s.Shift()
}

// Pages returns how many 4 KiB pages fit in a page of this size.
func (s Size) Pages() uint64 {
	return uint64(1) << (s.Shift() - PageShift)
}

// Aligned returns true if addr is a multiple of the page size.
func (s Size) Aligned(addr uintptr) bool {
	return addr&(s.Bytes()-1) == 0
}

// Name returns a short human readable name for the page size.
func (s Size) Name() string {
	switch s {
	case Size1GiB:
		return "1GiB"
	case Size2MiB:
		return "2MiB"
	default:
		return "4KiB"
	}
}
