// Package model defines the shared data model for the driftboard sync core:
// workspaces, board snapshots, presence, feed events, planner plans and
// automation telemetry.
package model

import "time"

// Mood is the vibe tag carried by every card.
type Mood string

const (
	MoodFocus Mood = "focus"
	MoodFlow  Mood = "flow"
	MoodChill Mood = "chill"
	MoodHype  Mood = "hype"
)

// ValidMood reports whether m is one of the known mood tags.
func ValidMood(m Mood) bool {
	switch m {
	case MoodFocus, MoodFlow, MoodChill, MoodHype:
		return true
	}
	return false
}

// BillingTier is the workspace subscription level.
type BillingTier string

const (
	TierFree BillingTier = "free"
	TierTeam BillingTier = "team"
	TierPro  BillingTier = "pro"
)

// Member is a workspace member. Order in Workspace.Members is significant.
type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// Workspace groups boards, members and the append-only feed logs.
// Workspaces are never deleted, only archived.
type Workspace struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Tier          BillingTier         `json:"tier"`
	Members       []Member            `json:"members"`
	Boards        []Board             `json:"boards"`
	Activity      []ActivityEvent     `json:"activity,omitempty"`
	Notifications []NotificationEvent `json:"notifications,omitempty"`
	Receipts      []UploadReceipt     `json:"receipts,omitempty"`
	Archived      bool                `json:"archived,omitempty"`
}

// Clone returns a deep copy of the workspace, boards included.
func (w Workspace) Clone() Workspace {
	out := w
	out.Members = append([]Member(nil), w.Members...)
	out.Boards = make([]Board, len(w.Boards))
	for i, b := range w.Boards {
		out.Boards[i] = b.Clone()
	}
	out.Activity = append([]ActivityEvent(nil), w.Activity...)
	out.Notifications = append([]NotificationEvent(nil), w.Notifications...)
	out.Receipts = append([]UploadReceipt(nil), w.Receipts...)
	return out
}

// UploadReceipt is a record handed to the core by the upload bridge.
// The core only renders receipts; it never performs the transport.
type UploadReceipt struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	Checksum  string    `json:"checksum"`
	Timestamp time.Time `json:"timestamp"`
}

// IntegrationStatus is a point-in-time snapshot of an external integration
// attached to a card (CI state, linked ticket, etc).
type IntegrationStatus struct {
	Provider  string    `json:"provider"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Card is a single goal on the board. A card belongs to exactly one column
// at a time; moving it is a relationship update, never a copy.
type Card struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Notes        string              `json:"notes,omitempty"`
	Mood         Mood                `json:"mood"`
	CreatedAt    time.Time           `json:"createdAt"`
	Assignee     string              `json:"assignee,omitempty"`
	DueDate      *time.Time          `json:"dueDate,omitempty"`
	Integrations []IntegrationStatus `json:"integrations,omitempty"`
	Runs         []AutomationRun     `json:"runs,omitempty"`
}

// Badge returns the automation badge for the card: the status of the most
// recent run, or empty when the card has no automation history.
func (c Card) Badge() RunStatus {
	if len(c.Runs) == 0 {
		return ""
	}
	return c.Runs[len(c.Runs)-1].Status
}

// Column is an ordered list of cards. Order is the thing the reorder
// engine preserves.
type Column struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Accent string `json:"accent,omitempty"`
	Cards  []Card `json:"cards"`
}

// MetricsSummary is derived from the board on every mutation.
type MetricsSummary struct {
	TotalCards  int            `json:"totalCards"`
	PerColumn   map[string]int `json:"perColumn,omitempty"`
	MoodCounts  map[Mood]int   `json:"moodCounts,omitempty"`
	WithDueDate int            `json:"withDueDate"`
}

// Board is the complete, self-contained snapshot of one board.
//
// LastUpdated (unix milliseconds) is the optimistic-concurrency marker:
// every accepted mutation produces a strictly greater value, and any push
// event carrying an older-or-equal stamp must be ignored by clients.
type Board struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspaceId"`
	ProjectName string         `json:"projectName"`
	Accent      string         `json:"accent,omitempty"`
	Columns     []Column       `json:"columns"`
	Metrics     MetricsSummary `json:"metrics"`
	LastUpdated int64          `json:"lastUpdated"`
	Archived    bool           `json:"archived,omitempty"`
}

// Clone returns a deep copy of the board. Snapshots have value semantics:
// mutations operate on copies so concurrent readers never observe a
// half-applied edit.
func (b Board) Clone() Board {
	out := b
	out.Columns = make([]Column, len(b.Columns))
	for i, col := range b.Columns {
		cc := col
		cc.Cards = make([]Card, len(col.Cards))
		for j, card := range col.Cards {
			k := card
			if card.DueDate != nil {
				due := *card.DueDate
				k.DueDate = &due
			}
			k.Integrations = append([]IntegrationStatus(nil), card.Integrations...)
			k.Runs = cloneRuns(card.Runs)
			cc.Cards[j] = k
		}
		out.Columns[i] = cc
	}
	out.Metrics.PerColumn = cloneCounts(b.Metrics.PerColumn)
	out.Metrics.MoodCounts = cloneMoodCounts(b.Metrics.MoodCounts)
	return out
}

// TouchUpdated bumps LastUpdated to now, or to the next millisecond when the
// wall clock has not advanced past the previous stamp. Guarantees strict
// monotonicity across any sequence of local mutations.
func (b *Board) TouchUpdated(now time.Time) {
	stamp := now.UnixMilli()
	if stamp <= b.LastUpdated {
		stamp = b.LastUpdated + 1
	}
	b.LastUpdated = stamp
}

// FindColumn returns the index of the column with the given id, or -1.
func (b Board) FindColumn(columnID string) int {
	for i, col := range b.Columns {
		if col.ID == columnID {
			return i
		}
	}
	return -1
}

// FindCard locates a card anywhere on the board and returns its column and
// card indexes, or (-1, -1) when absent.
func (b Board) FindCard(cardID string) (colIdx, cardIdx int) {
	for i, col := range b.Columns {
		for j, card := range col.Cards {
			if card.ID == cardID {
				return i, j
			}
		}
	}
	return -1, -1
}

// Recount recomputes the derived metrics summary from the column contents.
func (b *Board) Recount() {
	m := MetricsSummary{
		PerColumn:  make(map[string]int, len(b.Columns)),
		MoodCounts: make(map[Mood]int, 4),
	}
	for _, col := range b.Columns {
		m.PerColumn[col.ID] = len(col.Cards)
		m.TotalCards += len(col.Cards)
		for _, card := range col.Cards {
			m.MoodCounts[card.Mood]++
			if card.DueDate != nil {
				m.WithDueDate++
			}
		}
	}
	b.Metrics = m
}

func cloneCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneMoodCounts(in map[Mood]int) map[Mood]int {
	if in == nil {
		return nil
	}
	out := make(map[Mood]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
