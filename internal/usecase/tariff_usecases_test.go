package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/insurance-tariff-service/internal/domain"
)

// fakeSessions отслеживает жизненный цикл сессии и подменяет репозитории.
type fakeSessions struct {
	session  *fakeSession
	beginErr error
}

func (f *fakeSessions) Begin(context.Context) (domain.Session, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.session, nil
}

func (f *fakeSessions) Ping(context.Context) error { return nil }

type fakeSession struct {
	tariff    *domain.Tariff
	fetchErr  error
	upsertErr error
	commits   int
	rollbacks int
	commitErr error
}

func (s *fakeSession) Tariffs() domain.TariffRepository       { return s }
func (s *fakeSession) CargoTypes() domain.CargoTypeRepository { return s }

func (s *fakeSession) Commit(context.Context) error {
	s.commits++
	return s.commitErr
}

func (s *fakeSession) Rollback(context.Context) error {
	s.rollbacks++
	return nil
}

func (s *fakeSession) Fetch(context.Context, domain.Date, string) (*domain.Tariff, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.tariff, nil
}

func (s *fakeSession) Upsert(_ context.Context, tariffs []domain.Tariff) ([]domain.Tariff, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	return tariffs, nil
}

func (s *fakeSession) Edit(_ context.Context, t domain.Tariff) (*domain.Tariff, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return &t, nil
}

func (s *fakeSession) Delete(context.Context, domain.Date, string) (*domain.Tariff, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.tariff, nil
}

func (s *fakeSession) Register(context.Context, []string) ([]domain.CargoTypeInfo, error) {
	return nil, nil
}

func (s *fakeSession) List(context.Context) ([]domain.CargoTypeInfo, error) {
	return nil, nil
}

func TestEvaluateCostReadOnly(t *testing.T) {
	date := domain.NewDate(2024, time.January, 1)
	sess := &fakeSession{tariff: &domain.Tariff{Date: date, CargoType: "electronics", Rate: 1.5}}
	uc := EvaluateCost{DB: &fakeSessions{session: sess}}

	cost, err := uc.Execute(context.Background(), date, "electronics", 200)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if cost != 300 {
		t.Errorf("Execute() = %v, want 300", cost)
	}
	if sess.commits != 0 {
		t.Errorf("read-only use case committed %d times", sess.commits)
	}
	if sess.rollbacks != 1 {
		t.Errorf("session rolled back %d times, want 1", sess.rollbacks)
	}
}

func TestLoadTariffsCommitsOnSuccess(t *testing.T) {
	date := domain.NewDate(2024, time.January, 1)
	sess := &fakeSession{}
	uc := LoadTariffs{DB: &fakeSessions{session: sess}}

	affected, err := uc.Execute(context.Background(), []domain.Tariff{
		{Date: date, CargoType: "electronics", Rate: 1.5},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(affected) != 1 {
		t.Errorf("Execute() affected %d tariffs, want 1", len(affected))
	}
	if sess.commits != 1 {
		t.Errorf("session committed %d times, want 1", sess.commits)
	}
}

func TestLoadTariffsNoCommitOnFailure(t *testing.T) {
	sess := &fakeSession{upsertErr: errors.New("db down")}
	uc := LoadTariffs{DB: &fakeSessions{session: sess}}

	if _, err := uc.Execute(context.Background(), nil); err == nil {
		t.Fatal("Execute() expected error")
	}
	if sess.commits != 0 {
		t.Errorf("failed use case committed %d times", sess.commits)
	}
	if sess.rollbacks != 1 {
		t.Errorf("session rolled back %d times, want 1", sess.rollbacks)
	}
}

func TestEditTariffPropagatesNotFound(t *testing.T) {
	sess := &fakeSession{fetchErr: domain.ErrNotFound}
	uc := EditTariff{DB: &fakeSessions{session: sess}}

	_, err := uc.Execute(context.Background(), domain.Tariff{
		Date: domain.NewDate(2024, time.January, 1), CargoType: "electronics", Rate: 2,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Execute() error = %v, want ErrNotFound", err)
	}
	if sess.commits != 0 {
		t.Errorf("not-found edit committed %d times", sess.commits)
	}
}

func TestDeleteTariffCommitError(t *testing.T) {
	date := domain.NewDate(2024, time.January, 1)
	sess := &fakeSession{
		tariff:    &domain.Tariff{Date: date, CargoType: "glass", Rate: 2},
		commitErr: errors.New("connection lost"),
	}
	uc := DeleteTariff{DB: &fakeSessions{session: sess}}

	if _, err := uc.Execute(context.Background(), date, "glass"); err == nil {
		t.Fatal("Execute() expected commit error")
	}
}

func TestBeginError(t *testing.T) {
	uc := ListCargoTypes{DB: &fakeSessions{beginErr: errors.New("pool exhausted")}}
	if _, err := uc.Execute(context.Background()); err == nil {
		t.Fatal("Execute() expected error")
	}
}
