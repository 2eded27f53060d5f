package board

import (
	"time"

	"github.com/driftboard/driftboard/internal/model"
)

// Mutation is a named, pure snapshot transform handed to the optimistic
// layer. The name feeds logging and metrics.
type Mutation struct {
	Op    string
	apply func(model.Board, time.Time) model.Board
}

// Apply runs the transform.
func (m Mutation) Apply(b model.Board, now time.Time) model.Board {
	return m.apply(b, now)
}

// AddColumnOp creates a column with the given id and title.
func AddColumnOp(id, title string) Mutation {
	return Mutation{Op: "addColumn", apply: func(b model.Board, now time.Time) model.Board {
		return AddColumn(b, id, title, now)
	}}
}

// RemoveColumnOp deletes a column.
func RemoveColumnOp(id string) Mutation {
	return Mutation{Op: "removeColumn", apply: func(b model.Board, now time.Time) model.Board {
		return RemoveColumn(b, id, now)
	}}
}

// RenameColumnOp retitles a column.
func RenameColumnOp(id, title string) Mutation {
	return Mutation{Op: "renameColumn", apply: func(b model.Board, now time.Time) model.Board {
		return RenameColumn(b, id, title, now)
	}}
}

// AddCardOp appends a card to a column.
func AddCardOp(columnID string, card model.Card) Mutation {
	return Mutation{Op: "addCard", apply: func(b model.Board, now time.Time) model.Board {
		return AddCard(b, columnID, card, now)
	}}
}

// UpdateCardOp applies a partial card edit.
func UpdateCardOp(cardID string, patch CardPatch) Mutation {
	return Mutation{Op: "updateCard", apply: func(b model.Board, now time.Time) model.Board {
		return UpdateCard(b, cardID, patch, now)
	}}
}

// RemoveCardOp deletes a card.
func RemoveCardOp(cardID string) Mutation {
	return Mutation{Op: "removeCard", apply: func(b model.Board, now time.Time) model.Board {
		return RemoveCard(b, cardID, now)
	}}
}

// MoveCardWithinColumnOp reorders a card inside its column.
func MoveCardWithinColumnOp(columnID, movedID, targetID string) Mutation {
	return Mutation{Op: "moveCardWithinColumn", apply: func(b model.Board, now time.Time) model.Board {
		return MoveCardWithinColumn(b, columnID, movedID, targetID, now)
	}}
}

// MoveCardToColumnOp moves a card across columns.
func MoveCardToColumnOp(targetColumnID, movedID, beforeID string) Mutation {
	return Mutation{Op: "moveCardToColumn", apply: func(b model.Board, now time.Time) model.Board {
		return MoveCardToColumn(b, targetColumnID, movedID, beforeID, now)
	}}
}

// MoveColumnOp reorders columns.
func MoveColumnOp(movedID, targetID string) Mutation {
	return Mutation{Op: "moveColumn", apply: func(b model.Board, now time.Time) model.Board {
		return MoveColumn(b, movedID, targetID, now)
	}}
}

// SetProjectNameOp renames the board.
func SetProjectNameOp(name string) Mutation {
	return Mutation{Op: "setProjectName", apply: func(b model.Board, now time.Time) model.Board {
		return SetProjectName(b, name, now)
	}}
}
