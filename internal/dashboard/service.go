package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/pulse/internal/domain"
)

// AllProjects is the scope id of the cross-project dashboard.
const AllProjects int64 = 0

// AllProjectsLabel names the cross-project scope in notifications.
const AllProjectsLabel = "Todos os projetos"

// SnapshotSink receives every serialized snapshot a refresh produces.
type SnapshotSink interface {
	Store(ctx context.Context, projectID int64, payload []byte) error
}

// SnapshotLoader returns the last snapshot stored for a scope, possibly by
// another process.
type SnapshotLoader interface {
	Latest(ctx context.Context, projectID int64) ([]byte, error)
}

// OverdueNotifier is told about the overdue list after every refresh.
type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context, projectID int64, scope string, overdue []*domain.Task, total int) (bool, error)
}

// Snapshot is one dashboard view: the cross-project one when ProjectID is 0,
// otherwise a single project.
type Snapshot struct {
	ProjectID   int64          `json:"project_id"`
	ProjectName string         `json:"project_name,omitempty"`
	Projects    int            `json:"projects"`
	Roles       domain.RoleMap `json:"roles"`
	Summary     *Summary       `json:"summary"`
}

type ServiceOptions struct {
	Projects domain.ProjectSource
	Tasks    domain.TaskSource
	Roles    domain.RoleAssignmentRepository

	// Optional.
	Sink     SnapshotSink
	Loader   SnapshotLoader
	Notifier OverdueNotifier

	PollInterval time.Duration
	DisplayLimit int
	Now          func() time.Time
}

// projectState is the last data fetched for one project.
type projectState struct {
	project *domain.Project
	roles   domain.ColumnRoles
	tasks   []*domain.Task
}

// Service keeps dashboard snapshots current. Refreshes are serialized; reads
// see the last completed refresh.
type Service struct {
	opts ServiceOptions

	refreshMu sync.Mutex

	mu        sync.RWMutex
	states    map[int64]*projectState
	order     []int64
	snapshots map[int64]*Snapshot
	watchers  map[int64]map[chan []byte]struct{}

	pendingMu sync.Mutex
	pending   map[int64]struct{}
	kick      chan struct{}
}

func NewService(opts ServiceOptions) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DisplayLimit <= 0 {
		opts.DisplayLimit = DefaultDisplayLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}

	return &Service{
		opts:      opts,
		states:    make(map[int64]*projectState),
		snapshots: make(map[int64]*Snapshot),
		watchers:  make(map[int64]map[chan []byte]struct{}),
		pending:   make(map[int64]struct{}),
		kick:      make(chan struct{}, 1),
	}
}

// Refresh refetches every project and rebuilds all snapshots. A project whose
// columns or tasks cannot be fetched keeps its previous data; an
// authorization failure aborts the whole refresh.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	projects, err := s.opts.Projects.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard.Service.Refresh: list projects: %w", err)
	}

	fresh := make(map[int64]*projectState, len(projects))
	order := make([]int64, 0, len(projects))
	for _, p := range projects {
		st, err := s.fetchProject(ctx, p)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) || ctx.Err() != nil {
				return nil, fmt.Errorf("dashboard.Service.Refresh: %w", err)
			}
			log.Warn().Err(err).Int64("project_id", p.ID).Msg("project refresh failed, keeping previous data")
			s.mu.RLock()
			st = s.states[p.ID]
			s.mu.RUnlock()
			if st == nil {
				continue
			}
		}
		fresh[p.ID] = st
		order = append(order, p.ID)
	}

	s.mu.Lock()
	s.states = fresh
	s.order = order
	for id := range s.snapshots {
		if _, ok := fresh[id]; !ok && id != AllProjects {
			delete(s.snapshots, id)
		}
	}
	s.mu.Unlock()

	for _, id := range order {
		s.rebuild(ctx, id)
	}
	return s.rebuild(ctx, AllProjects), nil
}

// RefreshProject refetches one project, then rebuilds its snapshot and the
// cross-project one.
func (s *Service) RefreshProject(ctx context.Context, projectID int64) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	prev := s.states[projectID]
	s.mu.RUnlock()

	var project *domain.Project
	if prev != nil {
		project = prev.project
	} else {
		projects, err := s.opts.Projects.ListProjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("dashboard.Service.RefreshProject: list projects: %w", err)
		}
		for _, p := range projects {
			if p.ID == projectID {
				project = p
				break
			}
		}
		if project == nil {
			return nil, fmt.Errorf("dashboard.Service.RefreshProject: project %d: %w", projectID, domain.ErrNotFound)
		}
	}

	st, err := s.fetchProject(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("dashboard.Service.RefreshProject: %w", err)
	}

	s.mu.Lock()
	if _, known := s.states[projectID]; !known {
		s.order = append(s.order, projectID)
	}
	s.states[projectID] = st
	s.mu.Unlock()

	snap := s.rebuild(ctx, projectID)
	s.rebuild(ctx, AllProjects)
	return snap, nil
}

func (s *Service) fetchProject(ctx context.Context, p *domain.Project) (*projectState, error) {
	columns, err := s.opts.Projects.ListColumns(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("columns of project %d: %w", p.ID, err)
	}

	assignments, err := s.opts.Roles.ListByProject(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("roles of project %d: %w", p.ID, err)
	}

	tasks, err := s.opts.Tasks.ListTasks(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("tasks of project %d: %w", p.ID, err)
	}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		t.ProjectID = p.ID
		t.ProjectName = p.Name
	}

	return &projectState{
		project: p,
		roles:   ResolveRoles(columns, assignments),
		tasks:   tasks,
	}, nil
}

// rebuild aggregates the cached state of a scope, stores the snapshot and
// hands it to the sink, the watchers and the notifier.
func (s *Service) rebuild(ctx context.Context, projectID int64) *Snapshot {
	s.mu.RLock()
	roles := make(domain.RoleMap)
	var (
		tasks []*domain.Task
		name  = AllProjectsLabel
		count int
	)
	for _, id := range s.order {
		st, ok := s.states[id]
		if !ok || (projectID != AllProjects && id != projectID) {
			continue
		}
		roles[id] = st.roles
		tasks = append(tasks, st.tasks...)
		count++
		if projectID != AllProjects {
			name = st.project.Name
		}
	}
	s.mu.RUnlock()

	snap := &Snapshot{
		ProjectID:   projectID,
		ProjectName: name,
		Projects:    count,
		Roles:       roles,
		Summary:     Aggregate(tasks, roles, s.opts.Now(), s.opts.DisplayLimit),
	}

	s.mu.Lock()
	s.snapshots[projectID] = snap
	s.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Int64("project_id", projectID).Msg("failed to encode snapshot")
		return snap
	}

	if s.opts.Sink != nil {
		if err := s.opts.Sink.Store(ctx, projectID, payload); err != nil {
			log.Warn().Err(err).Int64("project_id", projectID).Msg("failed to store snapshot")
		}
	}
	s.broadcast(projectID, payload)

	if s.opts.Notifier != nil && projectID == AllProjects {
		if _, err := s.opts.Notifier.NotifyOverdue(ctx, projectID, name, snap.Summary.Overdue, snap.Summary.OverdueTotal); err != nil {
			log.Warn().Err(err).Msg("failed to post overdue digest")
		}
	}

	return snap
}

// Snapshot returns the latest snapshot of a scope. When this process has not
// built one yet, the loader is consulted.
func (s *Service) Snapshot(ctx context.Context, projectID int64) (*Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[projectID]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	if s.opts.Loader == nil {
		return nil, fmt.Errorf("dashboard.Service.Snapshot: %w", domain.ErrNotFound)
	}

	payload, err := s.opts.Loader.Latest(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("dashboard.Service.Snapshot: %w", err)
	}

	var loaded Snapshot
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return nil, fmt.Errorf("dashboard.Service.Snapshot: decode: %w", err)
	}
	return &loaded, nil
}

// EffectiveRoles returns the roles a project's columns currently resolve to,
// along with the explicit assignments that produced them.
func (s *Service) EffectiveRoles(ctx context.Context, projectID int64) (domain.ColumnRoles, []domain.RoleAssignment, error) {
	columns, err := s.opts.Projects.ListColumns(ctx, projectID)
	if err != nil {
		return domain.ColumnRoles{}, nil, fmt.Errorf("dashboard.Service.EffectiveRoles: %w", err)
	}

	assignments, err := s.opts.Roles.ListByProject(ctx, projectID)
	if err != nil {
		return domain.ColumnRoles{}, nil, fmt.Errorf("dashboard.Service.EffectiveRoles: %w", err)
	}

	return ResolveRoles(columns, assignments), assignments, nil
}

// SetRoles replaces a project's explicit assignments. Every column must be on
// the project's board. The project is queued for refresh.
func (s *Service) SetRoles(ctx context.Context, projectID int64, assignments []domain.RoleAssignment) error {
	if err := domain.ValidateAssignments(assignments); err != nil {
		return fmt.Errorf("dashboard.Service.SetRoles: %w", err)
	}

	columns, err := s.opts.Projects.ListColumns(ctx, projectID)
	if err != nil {
		return fmt.Errorf("dashboard.Service.SetRoles: %w", err)
	}
	for _, a := range assignments {
		if !slices.ContainsFunc(columns, func(c *domain.Column) bool { return c.ID == a.ColumnID }) {
			return fmt.Errorf("dashboard.Service.SetRoles: column %d not on board: %w", a.ColumnID, domain.ErrInvalidRoles)
		}
	}

	if err := s.opts.Roles.Replace(ctx, projectID, assignments); err != nil {
		return fmt.Errorf("dashboard.Service.SetRoles: %w", err)
	}

	s.Trigger(projectID)
	return nil
}

// ClearRoles drops a project's explicit assignments so its roles are
// inferred from board order again.
func (s *Service) ClearRoles(ctx context.Context, projectID int64) error {
	if err := s.opts.Roles.DeleteByProject(ctx, projectID); err != nil {
		return fmt.Errorf("dashboard.Service.ClearRoles: %w", err)
	}

	s.Trigger(projectID)
	return nil
}

// Trigger queues a refresh of one project for the Run loop. It never blocks;
// triggers arriving before the loop catches up are coalesced.
func (s *Service) Trigger(projectID int64) {
	s.pendingMu.Lock()
	s.pending[projectID] = struct{}{}
	s.pendingMu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Service) takePending() []int64 {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	ids := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	clear(s.pending)
	slices.Sort(ids)
	return ids
}

// Run refreshes everything immediately and then every poll interval, and
// serves triggered project refreshes in between, until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.refreshAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAll(ctx)
		case <-s.kick:
			for _, id := range s.takePending() {
				if _, err := s.RefreshProject(ctx, id); err != nil {
					log.Warn().Err(err).Int64("project_id", id).Msg("triggered refresh failed")
				}
			}
		}
	}
}

func (s *Service) refreshAll(ctx context.Context) {
	snap, err := s.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("dashboard refresh failed")
		}
		return
	}
	log.Debug().
		Int("projects", snap.Projects).
		Int("overdue", snap.Summary.OverdueTotal).
		Int("urgent", snap.Summary.UrgentTotal).
		Msg("dashboard refreshed")
}

// Watch streams serialized snapshots of a scope built by this process. The
// returned cleanup must be called once the caller stops reading. Slow
// watchers miss snapshots rather than stall refreshes.
func (s *Service) Watch(_ context.Context, projectID int64) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 8)

	s.mu.Lock()
	set, ok := s.watchers[projectID]
	if !ok {
		set = make(map[chan []byte]struct{})
		s.watchers[projectID] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[projectID], ch)
			if len(s.watchers[projectID]) == 0 {
				delete(s.watchers, projectID)
			}
			s.mu.Unlock()
		})
	}

	return ch, cleanup, nil
}

func (s *Service) broadcast(projectID int64, payload []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.watchers[projectID] {
		select {
		case ch <- payload:
		default:
			log.Debug().Int64("project_id", projectID).Msg("watcher lagging, snapshot dropped")
		}
	}
}
