package olock

import (
	goruntime "runtime"

	"github.com/mark-i-m/hot-spots/pkg/runtime"
)

// pauseAttempts is how many consecutive restarts spin on a CPU pause hint
// before falling back to yielding the goroutine to the scheduler.
const pauseAttempts = 3

// Backoff tracks restart attempts across the life of a single public
// operation (insert/lookup/scan). Every internal restart calls Wait, which
// spins briefly on the first few attempts and yields the scheduler on later
// ones, mirroring the reference implementation's "yield(count)" helper.
type Backoff struct {
	attempts int
}

// Wait backs off proportionally to how many times this operation has
// already restarted.
func (b *Backoff) Wait() {
	b.attempts++
	if b.attempts > pauseAttempts {
		goruntime.Gosched()
		return
	}
	runtime.Procyield(uint32(4 * b.attempts))
}
