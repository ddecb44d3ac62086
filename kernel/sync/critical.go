package sync

import "github.com/christiankuhl/titanium/kernel/cpu"

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	interruptsEnabledFn = cpu.InterruptsEnabled
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// IRQState records whether interrupts were enabled when a critical section
// was entered.
type IRQState bool

// EnterCritical masks interrupts and returns the previous interrupt state
// which must be passed to the matching ExitCritical call. Critical sections
// may be nested; only the outermost ExitCritical re-enables interrupts.
func EnterCritical() IRQState {
	state := IRQState(interruptsEnabledFn())
	disableInterruptsFn()
	return state
}

// ExitCritical restores the interrupt state captured by EnterCritical.
func ExitCritical(state IRQState) {
	if state {
		enableInterruptsFn()
	}
}

// IRQLock is a spinlock that can also be safely held by code that may be
// re-entered from an interrupt handler on the same CPU. Acquire masks
// interrupts before spinning so a handler can never observe (or deadlock on)
// a half-completed critical section.
type IRQLock struct {
	lock Spinlock
}

// Acquire disables interrupts, acquires the lock and returns the interrupt
// state that must be passed to Release.
func (l *IRQLock) Acquire() IRQState {
	state := EnterCritical()
	l.lock.Acquire()
	return state
}

// Release unlocks l and restores the interrupt state returned by Acquire.
func (l *IRQLock) Release(state IRQState) {
	l.lock.Release()
	ExitCritical(state)
}
