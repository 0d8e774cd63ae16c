// Package olock implements the optimistic lock coupling primitive used by
// the tree packages in this module.
//
// An OptLock packs three fields into one 64-bit word: an obsolete bit, a
// locked bit, and a monotonic version counter. Writers serialize per-node
// using a compare-and-swap on this word; readers never block, they read the
// version, do their work, then check that the version is unchanged. This
// implementation follows the pseudo-code in appendix A of
// https://db.in.tum.de/~leis/papers/artsync.pdf.
package olock

import (
	"sync/atomic"

	"github.com/mark-i-m/hot-spots/pkg/runtime"
)

const (
	obsoleteBit = uint64(1)
	lockedBit   = uint64(1 << 1)
)

// OptLock is an optimistic read/write lock embedded in every tree node.
//
// Bit 0 of the word is the obsolete flag (node detached, must not be used
// again). Bit 1 is the locked flag (a writer currently holds the node).
// Bits 2-63 are a version counter, bumped on every write-unlock.
type OptLock struct {
	word atomic.Uint64
}

// IsLocked reports whether version encodes a locked state.
func IsLocked(version uint64) bool { return version&lockedBit != 0 }

// IsObsolete reports whether version encodes an obsolete state.
func IsObsolete(version uint64) bool { return version&obsoleteBit != 0 }

// ReadLockOrRestart grabs an optimistic read lock, returning the current
// version. If the node is currently locked or obsolete, restart is true and
// the caller must retry its whole operation after backing off.
func (l *OptLock) ReadLockOrRestart() (version uint64, restart bool) {
	version = l.word.Load()
	if IsLocked(version) || IsObsolete(version) {
		runtime.Procyield(1)
		return version, true
	}
	return version, false
}

// CheckOrRestart restarts iff the word has changed since startVersion was
// observed by a prior ReadLockOrRestart.
func (l *OptLock) CheckOrRestart(startVersion uint64) (restart bool) {
	return l.word.Load() != startVersion
}

// ReadUnlockOrRestart is an alias for CheckOrRestart, used at the end of a
// read to validate that nothing was written in the meantime.
func (l *OptLock) ReadUnlockOrRestart(startVersion uint64) (restart bool) {
	return l.CheckOrRestart(startVersion)
}

// UpgradeToWriteLockOrRestart attempts to CAS version -> version+lockedBit.
// On success it returns the new (locked) version. On failure the caller
// must restart; version is returned unchanged.
func (l *OptLock) UpgradeToWriteLockOrRestart(version uint64) (newVersion uint64, restart bool) {
	if l.word.CompareAndSwap(version, version+lockedBit) {
		return version + lockedBit, false
	}
	runtime.Procyield(1)
	return version, true
}

// WriteLockOrRestart reads then immediately attempts to upgrade to a write
// lock, for callers that never held a prior read version.
func (l *OptLock) WriteLockOrRestart() (version uint64, restart bool) {
	version, restart = l.ReadLockOrRestart()
	if restart {
		return version, true
	}
	return l.UpgradeToWriteLockOrRestart(version)
}

// WriteUnlock releases a write lock and bumps the version. It must only be
// called by the thread that holds the write lock.
func (l *OptLock) WriteUnlock() {
	l.word.Add(lockedBit)
}

// WriteUnlockObsolete releases a write lock, bumps the version, and marks
// the node obsolete. Used when a node is detached from the tree (e.g. the
// old root after a split consumes its contents into two new children -
// note: in this tree splits truncate nodes in place rather than detaching
// them, so this is reserved for future deletion/reclamation support).
func (l *OptLock) WriteUnlockObsolete() {
	l.word.Add(lockedBit + obsoleteBit)
}

// Version returns the raw word, mostly for diagnostics and tests.
func (l *OptLock) Version() uint64 {
	return l.word.Load()
}
