package core

// Invoker spawns a function to run independently of the caller. Every
// background task (accept loops, per-connection read loops, the
// liveness detector, the new Leader's Screen and Payments notices, the
// initial token release) is started through an Invoker instead of a
// bare `go` statement, so tests can substitute a WaitGroup-tracked
// implementation and deterministically wait for it to settle. Dials,
// writes and the prepare-order sleep inside a frame handler run inline
// on the handler's goroutine.
type Invoker interface {
	Spawn(f func())
}

// goroutineInvoker is the production Invoker: every Spawn is a plain
// goroutine.
type goroutineInvoker struct{}

// NewInvoker returns the default, production Invoker.
func NewInvoker() Invoker {
	return goroutineInvoker{}
}

func (goroutineInvoker) Spawn(f func()) {
	go f()
}
