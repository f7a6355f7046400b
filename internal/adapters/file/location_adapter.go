// Package file serves locations from a YAML fixture file.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Document is the layout of a locations file.
type Document struct {
	Locations []entities.Location `yaml:"locations"`
}

// LocationAdapter is a read-only LocationRepository loaded once at startup.
type LocationAdapter struct {
	byID map[string]*entities.Location
}

var _ repositories.LocationRepository = (*LocationAdapter)(nil)

// LoadDocument reads and validates a locations file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations file: %w", err)
	}
	return ParseDocument(data)
}

func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse locations file: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Locations))
	for i := range doc.Locations {
		loc := &doc.Locations[i]
		loc.ID = strings.TrimSpace(loc.ID)
		if loc.ID == "" {
			return nil, fmt.Errorf("location %d has no id", i)
		}
		if _, dup := seen[loc.ID]; dup {
			return nil, fmt.Errorf("duplicate location id %q", loc.ID)
		}
		seen[loc.ID] = struct{}{}
		if loc.ReviewPlatforms == nil {
			loc.ReviewPlatforms = []entities.ReviewPlatformLink{}
		}
	}
	return &doc, nil
}

func NewLocationAdapter(doc *Document) *LocationAdapter {
	byID := make(map[string]*entities.Location, len(doc.Locations))
	for i := range doc.Locations {
		loc := doc.Locations[i]
		byID[loc.ID] = &loc
	}
	return &LocationAdapter{byID: byID}
}

// NewLocationAdapterFromFile loads path and builds an adapter over it.
func NewLocationAdapterFromFile(path string) (*LocationAdapter, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return NewLocationAdapter(doc), nil
}

func (a *LocationAdapter) GetByID(_ context.Context, id string) (*entities.Location, error) {
	loc, ok := a.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("location with id %s not found", id))
	}
	return clone(loc), nil
}

func (a *LocationAdapter) GetByIDs(_ context.Context, ids []string) ([]*entities.Location, error) {
	out := make([]*entities.Location, 0, len(ids))
	for _, id := range ids {
		if loc, ok := a.byID[id]; ok {
			out = append(out, clone(loc))
		}
	}
	return out, nil
}

func clone(loc *entities.Location) *entities.Location {
	out := *loc
	out.ReviewPlatforms = append([]entities.ReviewPlatformLink{}, loc.ReviewPlatforms...)
	if loc.Address != nil {
		addr := *loc.Address
		out.Address = &addr
	}
	return &out
}
