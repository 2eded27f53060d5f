// Package assist inspects board snapshots and produces suggestions plus a
// spotlight card, and maintains the append-only automation run history on
// cards.
package assist

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/model"
)

// SuggestionKind classifies a suggestion for display.
type SuggestionKind string

const (
	SuggestStaleCard        SuggestionKind = "stale-card"
	SuggestOverloadedColumn SuggestionKind = "overloaded-column"
	SuggestMissingNotes     SuggestionKind = "missing-notes"
	SuggestOverdue          SuggestionKind = "overdue"
)

// Suggestion is one actionable observation about the board.
type Suggestion struct {
	Kind     SuggestionKind `json:"kind"`
	Message  string         `json:"message"`
	CardID   string         `json:"cardId,omitempty"`
	ColumnID string         `json:"columnId,omitempty"`
}

// Report is the assist response for one board.
type Report struct {
	BoardID     string       `json:"boardId"`
	Suggestions []Suggestion `json:"suggestions"`
	Spotlight   *model.Card  `json:"spotlight,omitempty"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// Engine analyzes boards. Thresholds are fixed; tuning them per workspace
// tier is a possible followup once usage data exists.
type Engine struct {
	staleAfter time.Duration
	maxColumn  int
	logger     zerolog.Logger
	nowFn      func() time.Time
}

// NewEngine creates an engine with the reference thresholds: a card is stale
// after 14 days, a column is overloaded past 7 cards.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		staleAfter: 14 * 24 * time.Hour,
		maxColumn:  7,
		logger:     logger.With().Str("component", "assist").Logger(),
		nowFn:      time.Now,
	}
}

// Analyze produces the report for one board snapshot. Pure: the board is
// never modified.
func (e *Engine) Analyze(b model.Board) Report {
	now := e.nowFn().UTC()
	rep := Report{BoardID: b.ID, Suggestions: []Suggestion{}, GeneratedAt: now}

	var spotlight *model.Card
	var spotlightScore time.Duration

	for _, col := range b.Columns {
		if len(col.Cards) > e.maxColumn {
			rep.Suggestions = append(rep.Suggestions, Suggestion{
				Kind:     SuggestOverloadedColumn,
				ColumnID: col.ID,
				Message:  fmt.Sprintf("%q holds %d cards, consider splitting it", col.Title, len(col.Cards)),
			})
		}
		for i := range col.Cards {
			card := col.Cards[i]
			if card.DueDate != nil && card.DueDate.Before(now) {
				rep.Suggestions = append(rep.Suggestions, Suggestion{
					Kind:    SuggestOverdue,
					CardID:  card.ID,
					Message: fmt.Sprintf("%q is past its due date", card.Title),
				})
				// Overdue cards always outrank stale ones for the spotlight.
				overdueBy := now.Sub(*card.DueDate) + e.staleAfter
				if spotlight == nil || overdueBy > spotlightScore {
					c := card
					spotlight, spotlightScore = &c, overdueBy
				}
				continue
			}
			if !card.CreatedAt.IsZero() && now.Sub(card.CreatedAt) > e.staleAfter {
				rep.Suggestions = append(rep.Suggestions, Suggestion{
					Kind:    SuggestStaleCard,
					CardID:  card.ID,
					Message: fmt.Sprintf("%q has not moved in a while", card.Title),
				})
				age := now.Sub(card.CreatedAt) - e.staleAfter
				if spotlight == nil || age > spotlightScore {
					c := card
					spotlight, spotlightScore = &c, age
				}
			}
			if card.Notes == "" {
				rep.Suggestions = append(rep.Suggestions, Suggestion{
					Kind:    SuggestMissingNotes,
					CardID:  card.ID,
					Message: fmt.Sprintf("%q has no notes", card.Title),
				})
			}
		}
	}

	rep.Spotlight = spotlight
	e.logger.Debug().Str("board_id", b.ID).Int("suggestions", len(rep.Suggestions)).Msg("board analyzed")
	return rep
}
