package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	derrors "github.com/driftboard/driftboard/internal/errors"
	"github.com/driftboard/driftboard/internal/model"
	"github.com/driftboard/driftboard/internal/store"
)

// seedFile is the YAML layout for a demo workspace loaded at boot.
type seedFile struct {
	Workspace struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Tier    string `yaml:"tier"`
		Members []struct {
			ID   string `yaml:"id"`
			Name string `yaml:"name"`
			Role string `yaml:"role"`
		} `yaml:"members"`
		Boards []struct {
			ID          string `yaml:"id"`
			ProjectName string `yaml:"projectName"`
			Accent      string `yaml:"accent"`
			Columns     []struct {
				ID     string `yaml:"id"`
				Title  string `yaml:"title"`
				Accent string `yaml:"accent"`
				Cards  []struct {
					ID       string `yaml:"id"`
					Title    string `yaml:"title"`
					Notes    string `yaml:"notes"`
					Mood     string `yaml:"mood"`
					Assignee string `yaml:"assignee"`
				} `yaml:"cards"`
			} `yaml:"columns"`
		} `yaml:"boards"`
	} `yaml:"workspace"`
}

// LoadSeed parses a seed file into a workspace document.
func LoadSeed(path string) (model.Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Workspace{}, fmt.Errorf("read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return model.Workspace{}, fmt.Errorf("parse seed file: %w", err)
	}
	if f.Workspace.ID == "" {
		return model.Workspace{}, fmt.Errorf("seed file: workspace id is required")
	}

	now := time.Now()
	ws := model.Workspace{
		ID:   f.Workspace.ID,
		Name: f.Workspace.Name,
		Tier: model.BillingTier(f.Workspace.Tier),
	}
	if ws.Tier == "" {
		ws.Tier = model.TierFree
	}
	for _, m := range f.Workspace.Members {
		ws.Members = append(ws.Members, model.Member{
			UserID:      m.ID,
			DisplayName: m.Name,
			Role:        m.Role,
		})
	}

	for _, sb := range f.Workspace.Boards {
		b := model.Board{
			ID:          sb.ID,
			WorkspaceID: ws.ID,
			ProjectName: sb.ProjectName,
			Accent:      sb.Accent,
			Columns:     []model.Column{},
			LastUpdated: now.UnixMilli(),
		}
		for _, sc := range sb.Columns {
			col := model.Column{ID: sc.ID, Title: sc.Title, Accent: sc.Accent, Cards: []model.Card{}}
			for _, card := range sc.Cards {
				mood := model.Mood(card.Mood)
				if !model.ValidMood(mood) {
					mood = model.MoodFocus
				}
				col.Cards = append(col.Cards, model.Card{
					ID:        card.ID,
					Title:     card.Title,
					Notes:     card.Notes,
					Mood:      mood,
					Assignee:  card.Assignee,
					CreatedAt: now,
				})
			}
			b.Columns = append(b.Columns, col)
		}
		b.Recount()
		ws.Boards = append(ws.Boards, b)
	}

	return ws, nil
}

// ApplySeed loads the seed workspace into the store unless it already
// exists. Restarting a durable deployment never clobbers user edits.
func ApplySeed(ctx context.Context, st store.Store, path string, logger zerolog.Logger) error {
	ws, err := LoadSeed(path)
	if err != nil {
		return err
	}

	_, err = st.GetWorkspace(ctx, ws.ID)
	if err == nil {
		logger.Info().Str("workspace_id", ws.ID).Msg("seed workspace already present, skipping")
		return nil
	}
	if !errors.Is(err, derrors.ErrNotFound) {
		return err
	}

	if err := st.PutWorkspace(ctx, ws); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	logger.Info().Str("workspace_id", ws.ID).Int("boards", len(ws.Boards)).Msg("seed workspace loaded")
	return nil
}
