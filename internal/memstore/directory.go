package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
)

// Users holds profiles and groups. Seed with PutProfile and PutGroup.
type Users struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
	groups   map[string]*domain.Group
	open     bool
}

func NewUsers() *Users {
	return &Users{profiles: make(map[string]*domain.Profile), groups: make(map[string]*domain.Group)}
}

// NewOpenUsers returns a directory that creates a bare profile for any
// unknown id. Used when running without a database.
func NewOpenUsers() *Users {
	u := NewUsers()
	u.open = true
	return u
}

func (s *Users) PutProfile(p *domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.profiles[p.ID] = &c
}

func (s *Users) PutGroup(g *domain.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *g
	s.groups[g.ID] = &c
}

// Block records that userID blocked other.
func (s *Users) Block(userID, other string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok && !slices.Contains(p.Blocked, other) {
		p.Blocked = append(slices.Clone(p.Blocked), other)
	}
}

func (s *Users) Profile(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		if !s.open || userID == "" {
			return nil, apperr.NotFound("user not found")
		}
		p = &domain.Profile{ID: userID, Username: userID}
		s.profiles[userID] = p
	}
	c := *p
	c.Blocked = slices.Clone(p.Blocked)
	c.Muted = slices.Clone(p.Muted)
	return &c, nil
}

func (s *Users) SetLastSeen(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		t := at
		p.LastSeen = &t
	}
	return nil
}

func (s *Users) Group(_ context.Context, groupID string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, apperr.NotFound("group not found")
	}
	c := *g
	return &c, nil
}

type Alerts struct {
	mu   sync.Mutex
	rows []*domain.Alert
}

func NewAlerts() *Alerts { return &Alerts{} }

func (s *Alerts) Create(_ context.Context, a *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.rows = append(s.rows, &c)
	return nil
}

func (s *Alerts) ClearMessageAlerts(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, a := range s.rows {
		if a.UserID == userID && a.Type == domain.AlertMessage {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return n, nil
}

// For returns the alerts held for userID.
func (s *Alerts) For(userID string) []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Alert
	for _, a := range s.rows {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out
}

type CallLogs struct {
	mu   sync.Mutex
	rows map[string]*domain.CallLog
}

func NewCallLogs() *CallLogs { return &CallLogs{rows: make(map[string]*domain.CallLog)} }

func (s *CallLogs) Create(_ context.Context, l *domain.CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *l
	s.rows[l.ID] = &c
	return nil
}

func (s *CallLogs) Get(_ context.Context, id string) (*domain.CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("call log not found")
	}
	c := *l
	return &c, nil
}

func (s *CallLogs) Finalize(_ context.Context, id string, status domain.CallStatus, duration int, endedAt time.Time) (*domain.CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("call log not found")
	}
	l.Status = status
	l.Duration = duration
	t := endedAt
	l.EndedAt = &t
	c := *l
	return &c, nil
}
