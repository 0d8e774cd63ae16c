package runtime

import (
	"unsafe"
)

//go:noescape
//go:linkname memhash runtime.memhash
func memhash(p unsafe.Pointer, h, s uintptr) uintptr

// seed is fixed once per process, the same way the runtime seeds its own
// map hash: from fastrand, not a constant, so hash-flooding a long-running
// process can't be tuned for by an attacker who only knows the binary.
var seed = uintptr(Unit64())

type stringHeader struct {
	data unsafe.Pointer
	len  int
}

type sliceHeader struct {
	data unsafe.Pointer
	len  int
	cap  int
}

// MemHashString hashes str with the runtime's own string hash function.
func MemHashString(str string) uint64 {
	sh := (*stringHeader)(unsafe.Pointer(&str))
	return uint64(memhash(sh.data, seed, uintptr(sh.len)))
}

// MemHash hashes data the same way MemHashString hashes a string.
func MemHash(data []byte) uint64 {
	sh := (*sliceHeader)(unsafe.Pointer(&data))
	return uint64(memhash(sh.data, seed, uintptr(sh.len)))
}
