package chart

import (
	"fmt"
	"os"
	"path/filepath"

	"hdbinsights/models"

	"github.com/google/uuid"
)

// ArtifactStore persists chart renders as <id>.png and <id>_fig.json under a
// single directory. Artifacts are written once and never modified.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

func (s *ArtifactStore) Dir() string {
	return s.dir
}

func (s *ArtifactStore) Save(render *Render) (models.ChartOutcome, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return models.ChartOutcome{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	id := uuid.NewString()
	imagePath := s.imagePath(id)
	figPath := s.figurePath(id)

	if err := os.WriteFile(imagePath, render.PNG, 0o644); err != nil {
		return models.ChartOutcome{}, fmt.Errorf("failed to write chart image: %w", err)
	}

	if err := os.WriteFile(figPath, render.FigureJSON, 0o644); err != nil {
		os.Remove(imagePath)
		return models.ChartOutcome{}, fmt.Errorf("failed to write chart description: %w", err)
	}

	return models.ChartOutcome{
		Success:   true,
		UUID:      id,
		FigPath:   figPath,
		ImagePath: imagePath,
	}, nil
}

// FigurePath resolves the description file for a chart id. Ids that are not
// UUIDs are rejected so callers cannot escape the output directory.
func (s *ArtifactStore) FigurePath(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid chart id %q", id)
	}
	return s.figurePath(id), nil
}

func (s *ArtifactStore) ImagePath(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid chart id %q", id)
	}
	return s.imagePath(id), nil
}

func (s *ArtifactStore) LoadFigure(id string) (*Figure, error) {
	path, err := s.FigurePath(id)
	if err != nil {
		return nil, err
	}
	return LoadFigure(path)
}

func (s *ArtifactStore) figurePath(id string) string {
	return filepath.Join(s.dir, id+"_fig.json")
}

func (s *ArtifactStore) imagePath(id string) string {
	return filepath.Join(s.dir, id+".png")
}
