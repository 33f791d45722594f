package repo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/example/insurance-tariff-service/internal/domain"
)

type captureBatch struct {
	entries []domain.AuditEntry
}

func (b *captureBatch) Log(user, operation, message string) {
	b.entries = append(b.entries, domain.AuditEntry{User: user, Operation: operation, Message: message})
}

func (b *captureBatch) Flush(context.Context) error { return nil }
func (b *captureBatch) Discard()                    {}

func newTestRepo(t *testing.T) (*TariffRepo, pgxmock.PgxPoolIface, *captureBatch) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() error = %v", err)
	}
	t.Cleanup(mock.Close)
	batch := &captureBatch{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTariffRepo(mock, batch, "tariff-service", log), mock, batch
}

func tariffRows(tariffs ...domain.Tariff) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"date", "cargo_type", "rate"})
	for _, t := range tariffs {
		rows.AddRow(t.Date.Time, t.CargoType, t.Rate)
	}
	return rows
}

func TestTariffRepo_Fetch(t *testing.T) {
	date := domain.NewDate(2024, time.January, 1)
	want := domain.Tariff{Date: date, CargoType: "electronics", Rate: 1.5}

	t.Run("found", func(t *testing.T) {
		repo, mock, batch := newTestRepo(t)
		mock.ExpectQuery(`SELECT date, cargo_type, rate FROM tariffs`).
			WillReturnRows(tariffRows(want))

		got, err := repo.Fetch(context.Background(), date, "electronics")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if got.CargoType != want.CargoType || got.Rate != want.Rate || got.Date.String() != want.Date.String() {
			t.Errorf("Fetch() = %+v, want %+v", got, want)
		}
		if len(batch.entries) != 0 {
			t.Errorf("Fetch() produced %d audit entries, want 0", len(batch.entries))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, _ := newTestRepo(t)
		mock.ExpectQuery(`SELECT date, cargo_type, rate FROM tariffs`).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.Fetch(context.Background(), date, "electronics")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Fetch() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("store fault", func(t *testing.T) {
		repo, mock, _ := newTestRepo(t)
		mock.ExpectQuery(`SELECT date, cargo_type, rate FROM tariffs`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.Fetch(context.Background(), date, "electronics")
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Fetch() error = %v, want store fault", err)
		}
	})
}

func TestTariffRepo_Upsert(t *testing.T) {
	date := domain.NewDate(2024, time.January, 1)
	input := []domain.Tariff{
		{Date: date, CargoType: "electronics", Rate: 1.5},
		{Date: date, CargoType: "glass", Rate: 2},
		{Date: date, CargoType: "timber", Rate: 0.9},
	}
	// glass already stored with an equal rate: not affected, not returned
	affected := []domain.Tariff{input[0], input[2]}

	repo, mock, batch := newTestRepo(t)
	mock.ExpectQuery(`INSERT INTO tariffs`).
		WillReturnRows(tariffRows(affected...))

	got, err := repo.Upsert(context.Background(), input)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Upsert() returned %d tariffs, want 2", len(got))
	}
	if len(batch.entries) != 2 {
		t.Fatalf("Upsert() produced %d audit entries, want 2", len(batch.entries))
	}
	for i, e := range batch.entries {
		if e.User != "tariff-service" || e.Operation != domain.OpUpsert {
			t.Errorf("entry %d = %+v, want user tariff-service op upsert", i, e)
		}
		if e.Message != got[i].String() {
			t.Errorf("entry %d message = %q, want %q", i, e.Message, got[i].String())
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTariffRepo_Upsert_StoreFault(t *testing.T) {
	repo, mock, batch := newTestRepo(t)
	mock.ExpectQuery(`INSERT INTO tariffs`).
		WillReturnError(errors.New("constraint violation"))

	_, err := repo.Upsert(context.Background(), []domain.Tariff{
		{Date: domain.NewDate(2024, time.January, 1), CargoType: "electronics", Rate: 1.5},
	})
	if err == nil {
		t.Fatal("Upsert() expected error")
	}
	if len(batch.entries) != 0 {
		t.Errorf("failed Upsert() produced %d audit entries, want 0", len(batch.entries))
	}
}

func TestTariffRepo_Edit(t *testing.T) {
	date := domain.NewDate(2024, time.January, 1)
	updated := domain.Tariff{Date: date, CargoType: "electronics", Rate: 2}

	t.Run("rate changed", func(t *testing.T) {
		repo, mock, batch := newTestRepo(t)
		mock.ExpectQuery(`UPDATE tariffs SET rate`).
			WillReturnRows(tariffRows(updated))

		got, err := repo.Edit(context.Background(), updated)
		if err != nil {
			t.Fatalf("Edit() error = %v", err)
		}
		if got.Rate != 2 {
			t.Errorf("Edit() rate = %v, want 2", got.Rate)
		}
		if len(batch.entries) != 1 || batch.entries[0].Operation != domain.OpUpdate {
			t.Errorf("Edit() audit entries = %+v, want one update entry", batch.entries)
		}
	})

	t.Run("missing or unchanged", func(t *testing.T) {
		repo, mock, batch := newTestRepo(t)
		mock.ExpectQuery(`UPDATE tariffs SET rate`).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.Edit(context.Background(), updated)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Edit() error = %v, want ErrNotFound", err)
		}
		if len(batch.entries) != 0 {
			t.Errorf("no-op Edit() produced %d audit entries, want 0", len(batch.entries))
		}
	})
}

func TestTariffRepo_Delete(t *testing.T) {
	date := domain.NewDate(2024, time.January, 1)
	prior := domain.Tariff{Date: date, CargoType: "electronics", Rate: 2}

	t.Run("existing", func(t *testing.T) {
		repo, mock, batch := newTestRepo(t)
		mock.ExpectQuery(`DELETE FROM tariffs`).
			WillReturnRows(tariffRows(prior))

		got, err := repo.Delete(context.Background(), date, "electronics")
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if got.Rate != prior.Rate {
			t.Errorf("Delete() = %+v, want prior value %+v", got, prior)
		}
		if len(batch.entries) != 1 || batch.entries[0].Operation != domain.OpDelete {
			t.Errorf("Delete() audit entries = %+v, want one delete entry", batch.entries)
		}
	})

	t.Run("absent", func(t *testing.T) {
		repo, mock, batch := newTestRepo(t)
		mock.ExpectQuery(`DELETE FROM tariffs`).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.Delete(context.Background(), date, "electronics")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
		if len(batch.entries) != 0 {
			t.Errorf("failed Delete() produced audit entries: %+v", batch.entries)
		}
	})
}

func TestCargoTypeRepo_Register(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() error = %v", err)
	}
	defer mock.Close()
	batch := &captureBatch{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewCargoTypeRepo(mock, batch, "tariff-service", log)

	// "glass" already registered: skipped by ON CONFLICT DO NOTHING
	rows := pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "electronics")
	mock.ExpectQuery(`INSERT INTO cargo_types`).WillReturnRows(rows)

	registered, err := repo.Register(context.Background(), []string{"electronics", "glass"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(registered) != 1 || registered[0].Name != "electronics" || registered[0].ID != 7 {
		t.Errorf("Register() = %+v, want one new entry", registered)
	}
	if len(batch.entries) != 1 || batch.entries[0].Operation != domain.OpRegister {
		t.Errorf("Register() audit entries = %+v, want one register entry", batch.entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCargoTypeRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() error = %v", err)
	}
	defer mock.Close()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewCargoTypeRepo(mock, &captureBatch{}, "tariff-service", log)

	rows := pgxmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "electronics").
		AddRow(int64(2), "glass")
	mock.ExpectQuery(`SELECT id, name FROM cargo_types`).WillReturnRows(rows)

	result, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result) != 2 || result[0].Name != "electronics" || result[1].Name != "glass" {
		t.Errorf("List() = %+v", result)
	}
}
