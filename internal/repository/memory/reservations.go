package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/stockflow/internal/repository"
)

// ReservationStore реализует repository.ReservationStore в памяти
// Резервы сгруппированы по сессии: sessionID -> reservationID -> Reservation
type ReservationStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]repository.Reservation
}

// NewReservationStore создаёт пустое хранилище резервов
func NewReservationStore() *ReservationStore {
	return &ReservationStore{
		sessions: make(map[string]map[string]repository.Reservation),
	}
}

// Insert сохраняет резерв в его сессии
func (s *ReservationStore) Insert(ctx context.Context, res repository.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[res.SessionID]
	if !ok {
		sess = make(map[string]repository.Reservation)
		s.sessions[res.SessionID] = sess
	}
	sess[res.ID] = res
	return nil
}

// Get возвращает резерв сессии
func (s *ReservationStore) Get(ctx context.Context, sessionID, reservationID string) (repository.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.sessions[sessionID][reservationID]
	if !ok {
		return repository.Reservation{}, repository.ErrNotFound
	}
	return res, nil
}

// Take находит и удаляет резерв под одним lock
func (s *ReservationStore) Take(ctx context.Context, sessionID, reservationID string) (repository.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	res, ok := sess[reservationID]
	if !ok {
		return repository.Reservation{}, repository.ErrNotFound
	}
	delete(sess, reservationID)
	if len(sess) == 0 {
		delete(s.sessions, sessionID)
	}
	return res, nil
}

// ListCreatedBefore возвращает резервы всех сессий старше cutoff, от старых к новым
func (s *ReservationStore) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]repository.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []repository.Reservation
	for _, sess := range s.sessions {
		for _, res := range sess {
			if res.CreatedAt.Before(cutoff) {
				out = append(out, res)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
