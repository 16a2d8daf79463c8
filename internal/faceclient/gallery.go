package faceclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"venueattend/internal/model"
)

// TemplateSource lists members that carry a recognition template.
// Satisfied by *identity.Service.
type TemplateSource interface {
	Enrolled(ctx context.Context) ([]model.Member, error)
}

// RefreshRecorder observes gallery reloads. Satisfied by *metrics.Metrics.
type RefreshRecorder interface {
	GalleryRefreshed(n int)
}

// Gallery is the set of members the recognizer may report. It only changes
// on Refresh.
type Gallery struct {
	source   TemplateSource
	recorder RefreshRecorder

	mu          sync.RWMutex
	templates   map[string][]byte
	refreshedAt time.Time
}

func NewGallery(source TemplateSource, recorder RefreshRecorder) *Gallery {
	return &Gallery{source: source, recorder: recorder, templates: make(map[string][]byte)}
}

// Refresh reloads enrolled members from the source and returns how many were loaded.
// On error the previous contents are kept.
func (g *Gallery) Refresh(ctx context.Context) (int, error) {
	members, err := g.source.Enrolled(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh gallery: %w", err)
	}
	next := make(map[string][]byte, len(members))
	for _, m := range members {
		if m.Active && m.HasTemplate() {
			next[m.ID] = m.Template
		}
	}

	g.mu.Lock()
	g.templates = next
	g.refreshedAt = time.Now()
	g.mu.Unlock()

	if g.recorder != nil {
		g.recorder.GalleryRefreshed(len(next))
	}
	return len(next), nil
}

// Contains reports whether memberID was enrolled at the last refresh.
func (g *Gallery) Contains(memberID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.templates[memberID]
	return ok
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.templates)
}

func (g *Gallery) RefreshedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.refreshedAt
}
