// Package board implements the pure ordering algorithm and the snapshot
// mutations applied by the optimistic layer. Everything in this package is a
// total, side-effect-free function of its inputs: invalid ids return the
// input unchanged rather than failing.
package board

// MoveWithin removes the element with movedID and reinserts it at the
// position targetID occupied in the input order. Unknown ids, or moving an
// element onto itself, return the input slice unchanged.
//
// [A B C] with moved=A target=C yields [B C A].
func MoveWithin[T any](list []T, idOf func(T) string, movedID, targetID string) []T {
	if movedID == targetID {
		return list
	}
	src := indexOf(list, idOf, movedID)
	dst := indexOf(list, idOf, targetID)
	if src < 0 || dst < 0 {
		return list
	}

	out := make([]T, 0, len(list))
	out = append(out, list[:src]...)
	out = append(out, list[src+1:]...)
	if dst > len(out) {
		dst = len(out)
	}
	out = append(out[:dst], append([]T{list[src]}, out[dst:]...)...)
	return out
}

// MoveAcross removes the element with movedID from src and inserts it into
// dst before the element with beforeID. An empty or unknown beforeID appends
// to the end of dst. An unknown movedID returns both inputs unchanged.
func MoveAcross[T any](src, dst []T, idOf func(T) string, movedID, beforeID string) ([]T, []T) {
	i := indexOf(src, idOf, movedID)
	if i < 0 {
		return src, dst
	}
	moved := src[i]

	newSrc := make([]T, 0, len(src)-1)
	newSrc = append(newSrc, src[:i]...)
	newSrc = append(newSrc, src[i+1:]...)

	at := len(dst)
	if beforeID != "" {
		if j := indexOf(dst, idOf, beforeID); j >= 0 {
			at = j
		}
	}

	newDst := make([]T, 0, len(dst)+1)
	newDst = append(newDst, dst[:at]...)
	newDst = append(newDst, moved)
	newDst = append(newDst, dst[at:]...)
	return newSrc, newDst
}

func indexOf[T any](list []T, idOf func(T) string, id string) int {
	for i, v := range list {
		if idOf(v) == id {
			return i
		}
	}
	return -1
}
