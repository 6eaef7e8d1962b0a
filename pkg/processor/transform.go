/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

// TransformStage maps every element with fn and forwards the present results.
type TransformStage[T, R any] struct {
	StageProcessor[R]
	fn func(T) Optional[R]
}

var _ Stage[int, string] = (*TransformStage[int, string])(nil)

func NewTransformStage[T, R any](fn func(T) Optional[R]) *TransformStage[T, R] {
	return &TransformStage[T, R]{fn: fn}
}

// NewFilterStage forwards only the elements for which keep returns true.
func NewFilterStage[T any](keep func(T) bool) *TransformStage[T, T] {
	return NewTransformStage(func(e T) Optional[T] {
		if keep(e) {
			return Some(e)
		}
		return None[T]()
	})
}

func (t *TransformStage[T, R]) Process(element T) {
	t.EmitElementIfPresent(t.fn(element))
}

// ProcessBatch forwards the present results as one batch. Nothing is emitted if no result is present.
func (t *TransformStage[T, R]) ProcessBatch(elements []T) {
	out := make([]R, 0, len(elements))
	for _, e := range elements {
		if r, ok := t.fn(e).Get(); ok {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return
	}
	t.EmitBatch(out)
}
