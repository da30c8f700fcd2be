package kitchen

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/station"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/google/uuid"
)

// Catalog is an immutable snapshot of the active stations with an
// explicit category lookup table.
type Catalog struct {
	active     []Station
	byID       map[StationID]Station
	byCategory map[string]StationID
}

// NewCatalog indexes the active stations. When two active stations share
// a category the one with the lowest position owns it.
func NewCatalog(stations []Station) *Catalog {
	c := &Catalog{
		byID:       make(map[StationID]Station, len(stations)),
		byCategory: make(map[string]StationID),
	}
	for _, s := range stations {
		c.byID[s.ID] = s
		if s.Active {
			c.active = append(c.active, s)
		}
	}
	sort.SliceStable(c.active, func(i, j int) bool {
		if c.active[i].Position != c.active[j].Position {
			return c.active[i].Position < c.active[j].Position
		}
		return c.active[i].Name < c.active[j].Name
	})
	for _, s := range c.active {
		key := station.Normalize(s.Category)
		if _, taken := c.byCategory[key]; !taken {
			c.byCategory[key] = s.ID
		}
	}
	return c
}

// Lookup returns the active station serving category.
func (c *Catalog) Lookup(category string) (Station, bool) {
	id, ok := c.byCategory[station.Normalize(category)]
	if !ok {
		return Station{}, false
	}
	return c.byID[id], true
}

// Station returns any known station, active or not.
func (c *Catalog) Station(id StationID) (Station, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Active returns the active stations ordered by position.
func (c *Catalog) Active() []Station {
	return append([]Station(nil), c.active...)
}

func (c *Catalog) Len() int {
	return len(c.active)
}

// Stations is the station catalog service. It keeps the current catalog
// snapshot and rebuilds it after administrative changes, or once the
// snapshot is older than its TTL so changes made by other processes
// are picked up.
type Stations struct {
	repo   StationRepository
	logger logging.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	catalog  *Catalog
	loadedAt time.Time
}

func NewStations(repo StationRepository, logger logging.Logger) *Stations {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Stations{
		repo:   repo,
		logger: logger.With("component", "Stations"),
		now:    time.Now,
	}
}

// WithTTL bounds how long a catalog snapshot is reused. Zero keeps it
// until the next administrative change.
func (s *Stations) WithTTL(ttl time.Duration, now func() time.Time) *Stations {
	s.ttl = ttl
	if now != nil {
		s.now = now
	}
	return s
}

// Catalog returns the current snapshot, loading it on first use.
func (s *Stations) Catalog(ctx context.Context) (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.catalog != nil && (s.ttl <= 0 || now.Sub(s.loadedAt) < s.ttl) {
		return s.catalog, nil
	}
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, NewError("load catalog", "", nil, err)
	}
	s.catalog = NewCatalog(list)
	s.loadedAt = now
	s.logger.Info("station catalog loaded", "active", s.catalog.Len(), "total", len(list))
	return s.catalog, nil
}

// Invalidate drops the snapshot; the next Catalog call reloads.
func (s *Stations) Invalidate() {
	s.mu.Lock()
	s.catalog = nil
	s.mu.Unlock()
}

func (s *Stations) List(ctx context.Context) ([]Station, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, NewError("list stations", "", nil, err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	return list, nil
}

func (s *Stations) Get(ctx context.Context, id StationID) (*Station, error) {
	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, NewError("get station", id.String(), nil, err)
	}
	return st, nil
}

func (s *Stations) Create(ctx context.Context, st *Station) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	st.Category = station.Normalize(st.Category)
	if errs := st.Validate(); len(errs) > 0 {
		return Errorf("create station", st.ID.String(), ErrValidation, "%v", errs)
	}
	if err := s.repo.Create(ctx, st); err != nil {
		return NewError("create station", st.ID.String(), nil, err)
	}
	s.Invalidate()
	s.logger.Info("station created", "station_id", st.ID, "category", st.Category)
	return nil
}

// Update applies an administrative patch. Deactivation is the only way
// to retire a station.
func (s *Stations) Update(ctx context.Context, id StationID, patch StationPatch) (*Station, error) {
	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, NewError("update station", id.String(), nil, err)
	}
	patch.apply(st, time.Now().UTC())
	if errs := st.Validate(); len(errs) > 0 {
		return nil, Errorf("update station", id.String(), ErrValidation, "%v", errs)
	}
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, NewError("update station", id.String(), nil, err)
	}
	s.Invalidate()
	s.logger.Info("station updated", "station_id", st.ID, "active", st.Active)
	return st, nil
}
