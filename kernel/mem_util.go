package kernel

import "unsafe"

// Memset sets size bytes at the given address to value. Instead of a byte
// loop it performs log2(size) copy calls, which is considerably faster for the
// page-sized regions it is mostly used with.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
