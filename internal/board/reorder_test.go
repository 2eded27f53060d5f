package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type item struct{ id string }

func itemID(i item) string { return i.id }

func items(ids ...string) []item {
	out := make([]item, len(ids))
	for i, id := range ids {
		out[i] = item{id: id}
	}
	return out
}

func ids(list []item) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = v.id
	}
	return out
}

func TestMoveWithin_TakesTargetPosition(t *testing.T) {
	got := MoveWithin(items("A", "B", "C"), itemID, "A", "C")
	assert.Equal(t, []string{"B", "C", "A"}, ids(got))
}

func TestMoveWithin_MoveBackwards(t *testing.T) {
	got := MoveWithin(items("A", "B", "C"), itemID, "C", "A")
	assert.Equal(t, []string{"C", "A", "B"}, ids(got))
}

func TestMoveWithin_UnknownMovedIsNoop(t *testing.T) {
	in := items("A", "B", "C")
	got := MoveWithin(in, itemID, "X", "B")
	assert.Equal(t, ids(in), ids(got))
}

func TestMoveWithin_UnknownTargetIsNoop(t *testing.T) {
	in := items("A", "B", "C")
	got := MoveWithin(in, itemID, "A", "X")
	assert.Equal(t, ids(in), ids(got))
}

func TestMoveWithin_SelfTargetIsNoop(t *testing.T) {
	in := items("A", "B", "C")
	got := MoveWithin(in, itemID, "B", "B")
	assert.Equal(t, ids(in), ids(got))
}

func TestMoveWithin_IsPermutation(t *testing.T) {
	in := items("A", "B", "C", "D", "E")
	got := MoveWithin(in, itemID, "D", "B")
	assert.ElementsMatch(t, ids(in), ids(got))
	assert.Len(t, got, len(in))
	// Input untouched.
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, ids(in))
}

func TestMoveAcross_InsertBefore(t *testing.T) {
	src, dst := MoveAcross(items("A", "B"), items("C", "D"), itemID, "A", "D")
	assert.Equal(t, []string{"B"}, ids(src))
	assert.Equal(t, []string{"C", "A", "D"}, ids(dst))
}

func TestMoveAcross_NoAnchorAppends(t *testing.T) {
	src, dst := MoveAcross(items("A", "B", "C"), items("D"), itemID, "A", "")
	assert.Equal(t, []string{"B", "C"}, ids(src))
	assert.Equal(t, []string{"D", "A"}, ids(dst))
}

func TestMoveAcross_UnknownAnchorAppends(t *testing.T) {
	_, dst := MoveAcross(items("A"), items("B"), itemID, "A", "Z")
	assert.Equal(t, []string{"B", "A"}, ids(dst))
}

func TestMoveAcross_UnknownMovedIsNoop(t *testing.T) {
	src, dst := MoveAcross(items("A"), items("B"), itemID, "X", "")
	assert.Equal(t, []string{"A"}, ids(src))
	assert.Equal(t, []string{"B"}, ids(dst))
}

func TestMoveAcross_IDUnionUnchanged(t *testing.T) {
	src, dst := MoveAcross(items("A", "B"), items("C"), itemID, "B", "C")
	union := append(ids(src), ids(dst)...)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, union)
}
