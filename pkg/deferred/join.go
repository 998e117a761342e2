package deferred

import "sync/atomic"

// Tuple2 is the fixed-order result of Join2.
type Tuple2[A, B any] struct {
	A A
	B B
}

// Tuple3 is the fixed-order result of Join3.
type Tuple3[A, B, C any] struct {
	A A
	B B
	C C
}

// Tuple4 is the fixed-order result of Join4.
type Tuple4[A, B, C, D any] struct {
	A A
	B B
	C C
	D D
}

// Join2 resolves once both inputs have resolved, preserving input order
// regardless of which input completes first. The first failure wins and
// propagates to the joined value; later settlements are ignored.
func Join2[A, B any](a *Value[A], b *Value[B]) *Value[Tuple2[A, B]] {
	out := Pending[Tuple2[A, B]]()
	var t Tuple2[A, B]
	j := newJoiner(2, func() { out.Resolve(t) }, out.Fail)
	a.onDone(func(v A, err error) { t.A = v; j.arrive(err) })
	b.onDone(func(v B, err error) { t.B = v; j.arrive(err) })
	return out
}

// Join3 is Join2 extended to three inputs.
func Join3[A, B, C any](a *Value[A], b *Value[B], c *Value[C]) *Value[Tuple3[A, B, C]] {
	out := Pending[Tuple3[A, B, C]]()
	var t Tuple3[A, B, C]
	j := newJoiner(3, func() { out.Resolve(t) }, out.Fail)
	a.onDone(func(v A, err error) { t.A = v; j.arrive(err) })
	b.onDone(func(v B, err error) { t.B = v; j.arrive(err) })
	c.onDone(func(v C, err error) { t.C = v; j.arrive(err) })
	return out
}

// Join4 is Join2 extended to four inputs.
func Join4[A, B, C, D any](a *Value[A], b *Value[B], c *Value[C], d *Value[D]) *Value[Tuple4[A, B, C, D]] {
	out := Pending[Tuple4[A, B, C, D]]()
	var t Tuple4[A, B, C, D]
	j := newJoiner(4, func() { out.Resolve(t) }, out.Fail)
	a.onDone(func(v A, err error) { t.A = v; j.arrive(err) })
	b.onDone(func(v B, err error) { t.B = v; j.arrive(err) })
	c.onDone(func(v C, err error) { t.C = v; j.arrive(err) })
	d.onDone(func(v D, err error) { t.D = v; j.arrive(err) })
	return out
}

// All resolves once every input has resolved, producing a slice whose i-th
// element is the resolved value of the i-th input regardless of completion
// order. An empty input set resolves immediately to an empty slice.
func All[T any](vals ...*Value[T]) *Value[[]T] {
	out := Pending[[]T]()
	if len(vals) == 0 {
		out.Resolve(nil)
		return out
	}
	results := make([]T, len(vals))
	j := newJoiner(len(vals), func() { out.Resolve(results) }, out.Fail)
	for i, v := range vals {
		i := i
		v.onDone(func(val T, err error) {
			results[i] = val
			j.arrive(err)
		})
	}
	return out
}

// joiner counts input settlements and fires resolve exactly once when all
// inputs succeeded, or fail exactly once on the first failure.
type joiner struct {
	remaining int32
	settled   int32
	resolve   func()
	fail      func(error)
}

func newJoiner(n int, resolve func(), fail func(error)) *joiner {
	return &joiner{remaining: int32(n), resolve: resolve, fail: fail}
}

func (j *joiner) arrive(err error) {
	if err != nil {
		if atomic.CompareAndSwapInt32(&j.settled, 0, 1) {
			j.fail(err)
		}
		return
	}
	if atomic.AddInt32(&j.remaining, -1) == 0 {
		if atomic.CompareAndSwapInt32(&j.settled, 0, 1) {
			j.resolve()
		}
	}
}
