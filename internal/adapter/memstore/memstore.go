// Package memstore — потокобезопасная реализация domain.Sessions в памяти
// с теми же семантиками, что у Postgres-репозитория. Используется в тестах
// и при локальной разработке без базы.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/example/insurance-tariff-service/internal/domain"
)

type key struct {
	date      string
	cargoType string
}

// Store — хранилище тарифов и каталога типов груза в памяти.
type Store struct {
	mu         sync.RWMutex
	tariffs    map[key]domain.Tariff
	cargoTypes map[string]int64
	nextID     int64
	audit      []domain.AuditEntry
	user       string
}

func New(user string) *Store {
	return &Store{
		tariffs:    make(map[key]domain.Tariff),
		cargoTypes: make(map[string]int64),
		user:       user,
	}
}

// Begin открывает сессию. Мутации применяются сразу; Commit управляет только
// доставкой записей аудита, Rollback их отбрасывает.
func (s *Store) Begin(ctx context.Context) (domain.Session, error) {
	return &session{store: s}, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

var _ domain.Sessions = (*Store)(nil)

// AuditLog возвращает копию доставленных записей аудита.
func (s *Store) AuditLog() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

type session struct {
	store   *Store
	pending []domain.AuditEntry
	done    bool
}

func (ss *session) Tariffs() domain.TariffRepository       { return ss }
func (ss *session) CargoTypes() domain.CargoTypeRepository { return ss }

func (ss *session) Commit(ctx context.Context) error {
	if ss.done {
		return nil
	}
	ss.done = true
	ss.store.mu.Lock()
	ss.store.audit = append(ss.store.audit, ss.pending...)
	ss.store.mu.Unlock()
	ss.pending = nil
	return nil
}

func (ss *session) Rollback(ctx context.Context) error {
	ss.done = true
	ss.pending = nil
	return nil
}

func (ss *session) logEntry(operation, message string) {
	ss.pending = append(ss.pending, domain.AuditEntry{
		User:      ss.store.user,
		Operation: operation,
		Message:   message,
	})
}

func (ss *session) Fetch(ctx context.Context, date domain.Date, cargoType string) (*domain.Tariff, error) {
	ss.store.mu.RLock()
	defer ss.store.mu.RUnlock()
	t, ok := ss.store.tariffs[key{date.String(), cargoType}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (ss *session) Upsert(ctx context.Context, tariffs []domain.Tariff) ([]domain.Tariff, error) {
	ss.store.mu.Lock()
	defer ss.store.mu.Unlock()

	affected := make([]domain.Tariff, 0, len(tariffs))
	for _, t := range tariffs {
		k := key{t.Date.String(), t.CargoType}
		if existing, ok := ss.store.tariffs[k]; ok && existing.Rate == t.Rate {
			continue
		}
		ss.store.tariffs[k] = t
		affected = append(affected, t)
	}
	for _, t := range affected {
		ss.logEntry(domain.OpUpsert, t.String())
	}
	return affected, nil
}

func (ss *session) Edit(ctx context.Context, tariff domain.Tariff) (*domain.Tariff, error) {
	ss.store.mu.Lock()
	defer ss.store.mu.Unlock()

	k := key{tariff.Date.String(), tariff.CargoType}
	existing, ok := ss.store.tariffs[k]
	if !ok || existing.Rate == tariff.Rate {
		return nil, domain.ErrNotFound
	}
	ss.store.tariffs[k] = tariff
	ss.logEntry(domain.OpUpdate, tariff.String())
	return &tariff, nil
}

func (ss *session) Delete(ctx context.Context, date domain.Date, cargoType string) (*domain.Tariff, error) {
	ss.store.mu.Lock()
	defer ss.store.mu.Unlock()

	k := key{date.String(), cargoType}
	existing, ok := ss.store.tariffs[k]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(ss.store.tariffs, k)
	ss.logEntry(domain.OpDelete, existing.String())
	return &existing, nil
}

func (ss *session) Register(ctx context.Context, names []string) ([]domain.CargoTypeInfo, error) {
	ss.store.mu.Lock()
	defer ss.store.mu.Unlock()

	registered := make([]domain.CargoTypeInfo, 0, len(names))
	for _, name := range names {
		if _, ok := ss.store.cargoTypes[name]; ok {
			continue
		}
		ss.store.nextID++
		ss.store.cargoTypes[name] = ss.store.nextID
		registered = append(registered, domain.CargoTypeInfo{ID: ss.store.nextID, Name: name})
	}
	for _, ct := range registered {
		ss.logEntry(domain.OpRegister, ct.String())
	}
	return registered, nil
}

func (ss *session) List(ctx context.Context) ([]domain.CargoTypeInfo, error) {
	ss.store.mu.RLock()
	defer ss.store.mu.RUnlock()

	result := make([]domain.CargoTypeInfo, 0, len(ss.store.cargoTypes))
	for name, id := range ss.store.cargoTypes {
		result = append(result, domain.CargoTypeInfo{ID: id, Name: name})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
