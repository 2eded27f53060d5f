package board

import (
	"strings"
	"time"

	"github.com/driftboard/driftboard/internal/model"
)

// Each mutation below is a pure transform: it takes the current snapshot and
// returns a new one with a strictly greater LastUpdated stamp. A mutation
// that cannot apply (unknown id, empty rename) returns the input snapshot
// unchanged, without touching the stamp.

func cardID(c model.Card) string     { return c.ID }
func columnID(c model.Column) string { return c.ID }

// AddColumn appends a new column with the given id and title.
func AddColumn(b model.Board, id, title string, now time.Time) model.Board {
	title = strings.TrimSpace(title)
	if id == "" || title == "" || b.FindColumn(id) >= 0 {
		return b
	}
	out := b.Clone()
	out.Columns = append(out.Columns, model.Column{ID: id, Title: title, Cards: []model.Card{}})
	return touched(out, now)
}

// RemoveColumn deletes a column and every card it holds.
func RemoveColumn(b model.Board, id string, now time.Time) model.Board {
	i := b.FindColumn(id)
	if i < 0 {
		return b
	}
	out := b.Clone()
	out.Columns = append(out.Columns[:i], out.Columns[i+1:]...)
	return touched(out, now)
}

// RenameColumn sets a column's title. The title is trimmed; an empty result
// keeps the prior title (renames never persist an empty name).
func RenameColumn(b model.Board, id, title string, now time.Time) model.Board {
	i := b.FindColumn(id)
	title = strings.TrimSpace(title)
	if i < 0 || title == "" || b.Columns[i].Title == title {
		return b
	}
	out := b.Clone()
	out.Columns[i].Title = title
	return touched(out, now)
}

// AddCard appends a card to the given column.
func AddCard(b model.Board, columnID string, card model.Card, now time.Time) model.Board {
	i := b.FindColumn(columnID)
	card.Title = strings.TrimSpace(card.Title)
	if i < 0 || card.ID == "" || card.Title == "" {
		return b
	}
	if ci, _ := b.FindCard(card.ID); ci >= 0 {
		return b
	}
	if !model.ValidMood(card.Mood) {
		card.Mood = model.MoodFocus
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	out := b.Clone()
	out.Columns[i].Cards = append(out.Columns[i].Cards, card)
	return touched(out, now)
}

// CardPatch carries the optional fields of an UpdateCard mutation. Nil
// fields are left untouched.
type CardPatch struct {
	Title    *string
	Notes    *string
	Mood     *model.Mood
	Assignee *string
	DueDate  *time.Time
	ClearDue bool
}

// UpdateCard applies a partial edit to a card wherever it lives.
func UpdateCard(b model.Board, cardID string, patch CardPatch, now time.Time) model.Board {
	ci, cj := b.FindCard(cardID)
	if ci < 0 {
		return b
	}
	out := b.Clone()
	card := &out.Columns[ci].Cards[cj]
	if patch.Title != nil {
		if t := strings.TrimSpace(*patch.Title); t != "" {
			card.Title = t
		}
	}
	if patch.Notes != nil {
		card.Notes = *patch.Notes
	}
	if patch.Mood != nil && model.ValidMood(*patch.Mood) {
		card.Mood = *patch.Mood
	}
	if patch.Assignee != nil {
		card.Assignee = *patch.Assignee
	}
	if patch.ClearDue {
		card.DueDate = nil
	} else if patch.DueDate != nil {
		due := *patch.DueDate
		card.DueDate = &due
	}
	return touched(out, now)
}

// RemoveCard deletes a card wherever it lives.
func RemoveCard(b model.Board, cardID string, now time.Time) model.Board {
	ci, cj := b.FindCard(cardID)
	if ci < 0 {
		return b
	}
	out := b.Clone()
	col := &out.Columns[ci]
	col.Cards = append(col.Cards[:cj], col.Cards[cj+1:]...)
	return touched(out, now)
}

// MoveCardWithinColumn reorders a card inside one column: the card takes the
// position the target card occupied.
func MoveCardWithinColumn(b model.Board, columnID, movedID, targetID string, now time.Time) model.Board {
	i := b.FindColumn(columnID)
	if i < 0 {
		return b
	}
	reordered := MoveWithin(b.Columns[i].Cards, cardID, movedID, targetID)
	if sameOrder(b.Columns[i].Cards, reordered) {
		return b
	}
	out := b.Clone()
	out.Columns[i].Cards = reordered
	return touched(out, now)
}

// MoveCardToColumn moves a card from whichever column holds it into the
// target column, before beforeID or appended when beforeID is empty. Moving
// a card onto itself within its own column is a no-op.
func MoveCardToColumn(b model.Board, targetColumnID, movedID, beforeID string, now time.Time) model.Board {
	if movedID == beforeID {
		return b
	}
	srcIdx, _ := b.FindCard(movedID)
	dstIdx := b.FindColumn(targetColumnID)
	if srcIdx < 0 || dstIdx < 0 {
		return b
	}
	if srcIdx == dstIdx {
		if beforeID != "" {
			return MoveCardWithinColumn(b, targetColumnID, movedID, beforeID, now)
		}
		// Same column, no anchor: move to the end.
		cards := b.Columns[srcIdx].Cards
		if cards[len(cards)-1].ID == movedID {
			return b
		}
		out := b.Clone()
		col := &out.Columns[srcIdx]
		i := indexOf(col.Cards, cardID, movedID)
		moved := col.Cards[i]
		col.Cards = append(col.Cards[:i], col.Cards[i+1:]...)
		col.Cards = append(col.Cards, moved)
		return touched(out, now)
	}
	out := b.Clone()
	newSrc, newDst := MoveAcross(out.Columns[srcIdx].Cards, out.Columns[dstIdx].Cards, cardID, movedID, beforeID)
	out.Columns[srcIdx].Cards = newSrc
	out.Columns[dstIdx].Cards = newDst
	return touched(out, now)
}

// MoveColumn reorders columns with the same semantics as a within-list card
// move.
func MoveColumn(b model.Board, movedID, targetID string, now time.Time) model.Board {
	reordered := MoveWithin(b.Columns, columnID, movedID, targetID)
	if sameColumnOrder(b.Columns, reordered) {
		return b
	}
	out := b.Clone()
	out.Columns = MoveWithin(out.Columns, columnID, movedID, targetID)
	return touched(out, now)
}

// SetProjectName renames the board. Trimmed; empty keeps the prior name.
func SetProjectName(b model.Board, name string, now time.Time) model.Board {
	name = strings.TrimSpace(name)
	if name == "" || name == b.ProjectName {
		return b
	}
	out := b.Clone()
	out.ProjectName = name
	return touched(out, now)
}

func touched(b model.Board, now time.Time) model.Board {
	b.Recount()
	b.TouchUpdated(now)
	return b
}

func sameOrder(a, b []model.Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func sameColumnOrder(a, b []model.Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
