// Package view keeps the renderable state of the collection grid and
// serves it over HTTP.
package view

import (
	"sync"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 12

	WarningMessage = "Some collections failed to load"
	EmptyMessage   = "No collections with active listings"
)

// Snapshot is what a client renders. Items holds only the visible page
// range; Total counts every resolved collection.
type Snapshot struct {
	ScanID    uuid.UUID             `json:"scan_id"`
	Loading   bool                  `json:"loading"`
	Status    string                `json:"status,omitempty"`
	Items     []model.CollectionRef `json:"items"`
	Visible   int                   `json:"visible"`
	Total     int                   `json:"total"`
	HasMore   bool                  `json:"has_more"`
	Empty     bool                  `json:"empty"`
	Message   string                `json:"message,omitempty"`
	Warning   string                `json:"warning,omitempty"`
	Failed    []string              `json:"failed,omitempty"`
	Error     string                `json:"error,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Grid is a scanner observer holding the paginated grid state. The number
// of revealed pages survives rescans.
type Grid struct {
	mu       sync.RWMutex
	pageSize int
	pages    int

	scanID   uuid.UUID
	loading  bool
	status   string
	items    []model.CollectionRef
	failed   []string
	err      error
	complete bool
	updated  time.Time

	nowFn func() time.Time
}

func NewGrid(pageSize int) *Grid {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Grid{pageSize: pageSize, pages: 1, items: []model.CollectionRef{}, nowFn: time.Now}
}

func (g *Grid) PageSize() int {
	return g.pageSize
}

func (g *Grid) OnStart(scanID uuid.UUID, collections, _ int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scanID = scanID
	g.loading = collections > 0
	g.status = ""
	g.items = []model.CollectionRef{}
	g.failed = nil
	g.err = nil
	g.complete = false
	g.updated = g.nowFn()
}

func (g *Grid) OnProgress(p event.Progress) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scanID = p.ScanID
	g.loading = true
	g.status = p.Status
	g.items = append([]model.CollectionRef(nil), p.Results...)
	g.updated = g.nowFn()
}

func (g *Grid) OnWarning(failed []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = append([]string(nil), failed...)
	g.updated = g.nowFn()
}

func (g *Grid) OnComplete(results []model.CollectionRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loading = false
	g.status = ""
	g.items = append([]model.CollectionRef{}, results...)
	g.complete = true
	g.updated = g.nowFn()
}

// OnError ends the scan in an error state. Results already shown stay.
func (g *Grid) OnError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loading = false
	g.status = ""
	g.err = err
	g.updated = g.nowFn()
}

// LoadMore reveals the next page of already resolved items. It is a no-op
// when everything is visible.
func (g *Grid) LoadMore() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pages*g.pageSize < len(g.items) {
		g.pages++
	}
	return g.snapshotLocked(g.pages)
}

// Snapshot returns the grid with the currently revealed pages.
func (g *Grid) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked(g.pages)
}

// SnapshotPages returns the grid as if pages pages were revealed, without
// changing the stored page count.
func (g *Grid) SnapshotPages(pages int) Snapshot {
	if pages < 1 {
		pages = 1
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked(pages)
}

func (g *Grid) snapshotLocked(pages int) Snapshot {
	visible := min(pages*g.pageSize, len(g.items))
	s := Snapshot{
		ScanID:    g.scanID,
		Loading:   g.loading,
		Status:    g.status,
		Items:     append([]model.CollectionRef{}, g.items[:visible]...),
		Visible:   visible,
		Total:     len(g.items),
		HasMore:   visible < len(g.items),
		UpdatedAt: g.updated,
	}
	if len(g.failed) > 0 {
		s.Warning = WarningMessage
		s.Failed = append([]string(nil), g.failed...)
	}
	if g.err != nil {
		s.Error = g.err.Error()
	}
	if g.complete && len(g.items) == 0 {
		s.Empty = true
		s.Message = EmptyMessage
	}
	return s
}
