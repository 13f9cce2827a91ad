// Package diagnostic implements the synchronization core's failure model:
// precondition violations are programmer errors, never recoverable
// conditions. There are no error codes and no propagation, only an abort
// that carries a stack trace for whoever is staring at the kernel panic.
package diagnostic

import "github.com/pkg/errors"

// Abort reports a precondition violation (double acquire, release by a
// non-holder, interrupt-context misuse, a nil handle, ...) and panics with
// a stack-carrying error. Callers never recover from this; it mirrors the
// kernel's PANIC() on a failed ASSERT.
func Abort(format string, args ...interface{}) {
	panic(errors.Errorf(format, args...))
}
