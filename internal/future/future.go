/*
 * internal/future/future.go
 *
 * A single-assignment memoized computation. The first caller's result,
 * success or failure, is permanently cached and replayed to every later
 * caller; the underlying compute function runs at most once until Reset.
 */

package future

import "sync"

// Future memoizes the result of a single compute call.
// The zero value is ready to use.
type Future[T any] struct {
	once  sync.Once
	value T
	err   error
}

// Get runs compute on the first call and caches its result, good or bad, for
// every subsequent call. Concurrent callers block until the first caller's
// compute returns; none of them re-enter compute.
func (f *Future[T]) Get(compute func() (T, error)) (T, error) {
	f.once.Do(func() {
		f.value, f.err = compute()
	})
	return f.value, f.err
}

// Reset clears the memoized result so the next Get call recomputes it.
// Callers must serialize Reset against in-flight Get calls themselves;
// Future does not support concurrent Reset/Get by design, matching the
// single-assignment semantics callers rely on elsewhere.
func (f *Future[T]) Reset() {
	*f = Future[T]{}
}
