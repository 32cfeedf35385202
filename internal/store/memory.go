package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"neurosphere-backend/internal/models"
)

// MemoryStore keeps records in process memory. It backs local development and tests.
type MemoryStore struct {
	mu             sync.RWMutex
	scans          map[uuid.UUID]*models.Scan
	visualizations map[uuid.UUID]*models.Visualization
	now            func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scans:          make(map[uuid.UUID]*models.Scan),
		visualizations: make(map[uuid.UUID]*models.Visualization),
		now:            time.Now,
	}
}

func (m *MemoryStore) Scans() ScanStore                   { return m }
func (m *MemoryStore) Visualizations() VisualizationStore { return m }
func (m *MemoryStore) Ping(context.Context) error         { return nil }
func (m *MemoryStore) Close(context.Context) error        { return nil }

func copyScan(s *models.Scan) *models.Scan {
	c := *s
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	if s.VisualizationID != nil {
		id := *s.VisualizationID
		c.VisualizationID = &id
	}
	if s.Metadata != nil {
		c.Metadata = append([]byte(nil), s.Metadata...)
	}
	return &c
}

func (m *MemoryStore) InsertScan(_ context.Context, scan *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.scans[scan.ID]; exists {
		return ErrConflict
	}
	m.scans[scan.ID] = copyScan(scan)
	return nil
}

func (m *MemoryStore) GetScan(_ context.Context, id uuid.UUID) (*models.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scans[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyScan(s), nil
}

func (f ScanFilter) matches(s *models.Scan) bool {
	if f.Owner != "" && s.Owner != f.Owner {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.TumorDetected != nil {
		if s.Result == nil || s.Result.TumorDetected != *f.TumorDetected {
			return false
		}
	}
	if !f.CreatedAfter.IsZero() && s.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	return true
}

func (m *MemoryStore) ListScans(_ context.Context, filter ScanFilter, page Page) ([]models.Scan, int64, error) {
	if err := page.validate(); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.Scan, 0)
	for _, s := range m.scans {
		if filter.matches(s) {
			matched = append(matched, s)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if page.Offset >= len(matched) {
		return []models.Scan{}, total, nil
	}
	end := len(matched)
	if page.Limit > 0 && page.Limit < end-page.Offset {
		end = page.Offset + page.Limit
	}

	out := make([]models.Scan, 0, end-page.Offset)
	for _, s := range matched[page.Offset:end] {
		out = append(out, *copyScan(s))
	}
	return out, total, nil
}

func (m *MemoryStore) CountScans(_ context.Context, filter ScanFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, s := range m.scans {
		if filter.matches(s) {
			n++
		}
	}
	return n, nil
}

// mutateScan applies fn under the write lock when guard accepts the record.
func (m *MemoryStore) mutateScan(id uuid.UUID, guard func(*models.Scan) bool, fn func(*models.Scan)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scans[id]
	if !ok {
		return ErrRecordNotFound
	}
	if !guard(s) {
		return ErrConflict
	}
	fn(s)
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) ClaimScan(_ context.Context, id uuid.UUID) error {
	return m.mutateScan(id, func(s *models.Scan) bool {
		return s.Status == models.ScanStatusProcessing && s.Stage == models.StageQueued && !s.Claimed
	}, func(s *models.Scan) {
		s.Claimed = true
	})
}

func (m *MemoryStore) AdvanceScan(_ context.Context, id uuid.UUID, stage models.Stage, progress int) error {
	return m.mutateScan(id, func(s *models.Scan) bool {
		return s.Status == models.ScanStatusProcessing &&
			stage.Rank() >= s.Stage.Rank() &&
			progress >= s.Progress
	}, func(s *models.Scan) {
		s.Stage = stage
		s.Progress = progress
	})
}

func (m *MemoryStore) CompleteScan(_ context.Context, id uuid.UUID, result models.ScanResult) error {
	return m.mutateScan(id, func(s *models.Scan) bool {
		return s.Status == models.ScanStatusProcessing
	}, func(s *models.Scan) {
		r := result
		s.Result = &r
		s.Status = models.ScanStatusCompleted
		s.Stage = models.StageCompleted
		s.Progress = 100
	})
}

func (m *MemoryStore) FailScan(_ context.Context, id uuid.UUID, errorMessage string) error {
	return m.mutateScan(id, func(s *models.Scan) bool {
		return s.Status == models.ScanStatusProcessing
	}, func(s *models.Scan) {
		s.Status = models.ScanStatusFailed
		s.ErrorMessage = errorMessage
	})
}

func (m *MemoryStore) LinkVisualization(_ context.Context, scanID, visualizationID uuid.UUID) error {
	return m.mutateScan(scanID, func(*models.Scan) bool { return true }, func(s *models.Scan) {
		id := visualizationID
		s.VisualizationID = &id
	})
}

func (m *MemoryStore) InsertVisualization(_ context.Context, viz *models.Visualization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scans[viz.ScanID]; !ok {
		return ErrRecordNotFound
	}
	if _, exists := m.visualizations[viz.ID]; exists {
		return ErrConflict
	}
	v := *viz
	m.visualizations[viz.ID] = &v
	return nil
}

func (m *MemoryStore) GetVisualization(_ context.Context, id uuid.UUID) (*models.Visualization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.visualizations[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *v
	return &out, nil
}

func (m *MemoryStore) FindActiveVisualization(_ context.Context, scanID uuid.UUID) (*models.Visualization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active *models.Visualization
	for _, v := range m.visualizations {
		if v.ScanID != scanID || v.Status != models.VisualizationStatusProcessing {
			continue
		}
		if active == nil || v.CreatedAt.After(active.CreatedAt) {
			active = v
		}
	}
	if active == nil {
		return nil, ErrRecordNotFound
	}
	out := *active
	return &out, nil
}

func (m *MemoryStore) mutateVisualization(id uuid.UUID, guard func(*models.Visualization) bool, fn func(*models.Visualization)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visualizations[id]
	if !ok {
		return ErrRecordNotFound
	}
	if !guard(v) {
		return ErrConflict
	}
	fn(v)
	v.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) UpdateVisualizationProgress(_ context.Context, id uuid.UUID, progress int) error {
	return m.mutateVisualization(id, func(v *models.Visualization) bool {
		return v.Status == models.VisualizationStatusProcessing && progress >= v.Progress
	}, func(v *models.Visualization) {
		v.Progress = progress
	})
}

func (m *MemoryStore) CompleteVisualization(_ context.Context, id uuid.UUID, htmlRef string) error {
	return m.mutateVisualization(id, func(v *models.Visualization) bool {
		return v.Status == models.VisualizationStatusProcessing
	}, func(v *models.Visualization) {
		v.Status = models.VisualizationStatusCompleted
		v.Progress = 100
		v.HTMLRef = htmlRef
	})
}

func (m *MemoryStore) FailVisualization(_ context.Context, id uuid.UUID, errorMessage string) error {
	return m.mutateVisualization(id, func(v *models.Visualization) bool {
		return v.Status == models.VisualizationStatusProcessing
	}, func(v *models.Visualization) {
		v.Status = models.VisualizationStatusFailed
		v.ErrorMessage = errorMessage
	})
}
