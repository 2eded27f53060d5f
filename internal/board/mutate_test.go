package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/model"
)

func testBoard() model.Board {
	b := model.Board{
		ID:          "board-1",
		WorkspaceID: "ws-1",
		ProjectName: "Launch",
		Columns: []model.Column{
			{ID: "backlog", Title: "Backlog", Cards: []model.Card{
				{ID: "A", Title: "Ship it", Mood: model.MoodFocus},
				{ID: "B", Title: "Fix bug", Mood: model.MoodFlow},
				{ID: "C", Title: "Write docs", Mood: model.MoodChill},
			}},
			{ID: "doing", Title: "Doing", Cards: []model.Card{
				{ID: "D", Title: "Review", Mood: model.MoodHype},
			}},
		},
		LastUpdated: 1000,
	}
	b.Recount()
	return b
}

func boardIDs(b model.Board, columnID string) []string {
	i := b.FindColumn(columnID)
	if i < 0 {
		return nil
	}
	out := make([]string, len(b.Columns[i].Cards))
	for j, c := range b.Columns[i].Cards {
		out[j] = c.ID
	}
	return out
}

func allIDs(b model.Board) []string {
	var out []string
	for _, col := range b.Columns {
		for _, c := range col.Cards {
			out = append(out, c.ID)
		}
	}
	return out
}

var now = time.UnixMilli(5000)

func TestMoveCardWithinColumn_Scenario(t *testing.T) {
	got := MoveCardWithinColumn(testBoard(), "backlog", "A", "C", now)
	assert.Equal(t, []string{"B", "C", "A"}, boardIDs(got, "backlog"))
}

func TestMoveCardToColumn_AppendsWithoutAnchor(t *testing.T) {
	in := testBoard()
	got := MoveCardToColumn(in, "doing", "A", "", now)

	assert.Equal(t, []string{"B", "C"}, boardIDs(got, "backlog"))
	assert.Equal(t, []string{"D", "A"}, boardIDs(got, "doing"))
	assert.ElementsMatch(t, allIDs(in), allIDs(got))
}

func TestMoveCardToColumn_InsertBefore(t *testing.T) {
	got := MoveCardToColumn(testBoard(), "doing", "B", "D", now)
	assert.Equal(t, []string{"B", "D"}, boardIDs(got, "doing"))
}

func TestMoveCardToColumn_NoDuplicateAcrossColumns(t *testing.T) {
	got := MoveCardToColumn(testBoard(), "doing", "C", "", now)
	seen := map[string]int{}
	for _, id := range allIDs(got) {
		seen[id]++
	}
	for id, n := range seen {
		assert.Equalf(t, 1, n, "card %s appears %d times", id, n)
	}
}

func TestMoveCardToColumn_UnknownCardIsNoop(t *testing.T) {
	in := testBoard()
	got := MoveCardToColumn(in, "doing", "nope", "", now)
	assert.Equal(t, in.LastUpdated, got.LastUpdated)
	assert.Equal(t, allIDs(in), allIDs(got))
}

func TestMoveCardToColumn_SelfTargetSameColumnIsNoop(t *testing.T) {
	in := testBoard()
	got := MoveCardToColumn(in, "backlog", "A", "A", now)
	assert.Equal(t, in.LastUpdated, got.LastUpdated)
	assert.Equal(t, []string{"A", "B", "C"}, boardIDs(got, "backlog"))
}

func TestMoveCardToColumn_SameColumnNoAnchorMovesToEnd(t *testing.T) {
	got := MoveCardToColumn(testBoard(), "backlog", "A", "", now)
	assert.Equal(t, []string{"B", "C", "A"}, boardIDs(got, "backlog"))
}

func TestRenameColumn_TrimsWhitespace(t *testing.T) {
	got := RenameColumn(testBoard(), "backlog", "  Icebox  ", now)
	assert.Equal(t, "Icebox", got.Columns[0].Title)
}

func TestRenameColumn_EmptyKeepsPriorName(t *testing.T) {
	in := testBoard()
	got := RenameColumn(in, "backlog", "   ", now)
	assert.Equal(t, "Backlog", got.Columns[0].Title)
	assert.Equal(t, in.LastUpdated, got.LastUpdated)
}

func TestSetProjectName_EmptyKeepsPriorName(t *testing.T) {
	in := testBoard()
	got := SetProjectName(in, " \t ", now)
	assert.Equal(t, "Launch", got.ProjectName)
}

func TestSetProjectName_Trims(t *testing.T) {
	got := SetProjectName(testBoard(), " Orbit ", now)
	assert.Equal(t, "Orbit", got.ProjectName)
	assert.Greater(t, got.LastUpdated, int64(1000))
}

func TestAddCard_SetsDefaults(t *testing.T) {
	got := AddCard(testBoard(), "doing", model.Card{ID: "E", Title: "  New  ", Mood: "weird"}, now)
	i := got.FindColumn("doing")
	require.Len(t, got.Columns[i].Cards, 2)
	added := got.Columns[i].Cards[1]
	assert.Equal(t, "New", added.Title)
	assert.Equal(t, model.MoodFocus, added.Mood)
	assert.Equal(t, now, added.CreatedAt)
}

func TestAddCard_DuplicateIDIsNoop(t *testing.T) {
	in := testBoard()
	got := AddCard(in, "doing", model.Card{ID: "A", Title: "dupe"}, now)
	assert.Equal(t, in.LastUpdated, got.LastUpdated)
}

func TestRemoveColumn_DropsCards(t *testing.T) {
	got := RemoveColumn(testBoard(), "backlog", now)
	assert.Equal(t, []string{"D"}, allIDs(got))
	assert.Equal(t, 1, got.Metrics.TotalCards)
}

func TestUpdateCard_PartialPatch(t *testing.T) {
	notes := "longer notes"
	mood := model.MoodHype
	got := UpdateCard(testBoard(), "B", CardPatch{Notes: &notes, Mood: &mood}, now)
	_, cj := got.FindCard("B")
	card := got.Columns[0].Cards[cj]
	assert.Equal(t, "Fix bug", card.Title)
	assert.Equal(t, "longer notes", card.Notes)
	assert.Equal(t, model.MoodHype, card.Mood)
}

func TestUpdateCard_EmptyTitleKeepsPrior(t *testing.T) {
	empty := "  "
	got := UpdateCard(testBoard(), "B", CardPatch{Title: &empty}, now)
	_, cj := got.FindCard("B")
	assert.Equal(t, "Fix bug", got.Columns[0].Cards[cj].Title)
}

func TestMutations_StampStrictlyIncreases(t *testing.T) {
	b := testBoard()
	clock := time.UnixMilli(2000)
	stamps := []int64{b.LastUpdated}

	muts := []Mutation{
		AddColumnOp("done", "Done"),
		AddCardOp("done", model.Card{ID: "E", Title: "Celebrate", Mood: model.MoodHype}),
		MoveCardToColumnOp("done", "A", ""),
		RenameColumnOp("done", "Shipped"),
		SetProjectNameOp("Orbit"),
	}
	for _, m := range muts {
		b = m.Apply(b, clock) // frozen clock: monotonic bump must kick in
		stamps = append(stamps, b.LastUpdated)
	}

	for i := 1; i < len(stamps); i++ {
		assert.Greaterf(t, stamps[i], stamps[i-1], "stamp %d did not increase", i)
	}
}

func TestMutations_PureInputUntouched(t *testing.T) {
	in := testBoard()
	_ = MoveCardToColumn(in, "doing", "A", "", now)
	_ = RemoveCard(in, "B", now)
	_ = RenameColumn(in, "backlog", "X", now)

	assert.Equal(t, []string{"A", "B", "C"}, boardIDs(in, "backlog"))
	assert.Equal(t, "Backlog", in.Columns[0].Title)
	assert.Equal(t, int64(1000), in.LastUpdated)
}

func TestMoveColumn_Reorders(t *testing.T) {
	got := MoveColumn(testBoard(), "doing", "backlog", now)
	assert.Equal(t, "doing", got.Columns[0].ID)
	assert.Equal(t, "backlog", got.Columns[1].ID)
}

func TestRecount_TracksMoods(t *testing.T) {
	b := testBoard()
	assert.Equal(t, 4, b.Metrics.TotalCards)
	assert.Equal(t, 3, b.Metrics.PerColumn["backlog"])
	assert.Equal(t, 1, b.Metrics.MoodCounts[model.MoodHype])
}
