package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/insurance-tariff-service/internal/domain"
)

const (
	tariffsTable    = "tariffs"
	cargoTypesTable = "cargo_types"
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier — общий срез pgx.Tx и pgxpool.Pool; позволяет тестировать
// репозитории через pgxmock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSessions — фабрика транзакционных сессий поверх pgxpool.
type PostgresSessions struct {
	Pool *pgxpool.Pool
	Sink domain.AuditSink
	User string
	Log  *slog.Logger
}

func NewPostgresSessions(pool *pgxpool.Pool, sink domain.AuditSink, user string, log *slog.Logger) *PostgresSessions {
	return &PostgresSessions{Pool: pool, Sink: sink, User: user, Log: log}
}

func (s *PostgresSessions) Begin(ctx context.Context) (domain.Session, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &pgSession{tx: tx, batch: s.Sink.Batch(), user: s.User, log: s.Log}, nil
}

func (s *PostgresSessions) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

var _ domain.Sessions = (*PostgresSessions)(nil)

type pgSession struct {
	tx    pgx.Tx
	batch domain.AuditBatch
	user  string
	log   *slog.Logger
	done  bool
}

func (s *pgSession) Tariffs() domain.TariffRepository {
	return NewTariffRepo(s.tx, s.batch, s.user, s.log)
}

func (s *pgSession) CargoTypes() domain.CargoTypeRepository {
	return NewCargoTypeRepo(s.tx, s.batch, s.user, s.log)
}

// Commit фиксирует транзакцию; батч аудита отправляется только после
// успешного коммита. Ошибка доставки аудита не отменяет уже зафиксированную
// мутацию — она логируется и проглатывается.
func (s *pgSession) Commit(ctx context.Context) error {
	if err := s.tx.Commit(ctx); err != nil {
		s.batch.Discard()
		s.done = true
		return fmt.Errorf("commit tx: %w", err)
	}
	s.done = true
	if err := s.batch.Flush(ctx); err != nil {
		s.log.Error("audit flush failed", "err", err)
	}
	return nil
}

func (s *pgSession) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	s.batch.Discard()
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// TariffRepo — репозиторий тарифов; работает в рамках переданной сессии.
type TariffRepo struct {
	q     querier
	batch domain.AuditBatch
	user  string
	log   *slog.Logger
}

func NewTariffRepo(q querier, batch domain.AuditBatch, user string, log *slog.Logger) *TariffRepo {
	return &TariffRepo{q: q, batch: batch, user: user, log: log}
}

var _ domain.TariffRepository = (*TariffRepo)(nil)

func (r *TariffRepo) Fetch(ctx context.Context, date domain.Date, cargoType string) (*domain.Tariff, error) {
	query, args, err := qb.
		Select("date", "cargo_type", "rate").
		From(tariffsTable).
		Where(sq.Eq{"date": date.Time, "cargo_type": cargoType}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var t domain.Tariff
	err = r.q.QueryRow(ctx, query, args...).Scan(&t.Date, &t.CargoType, &t.Rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	return &t, nil
}

// Upsert выполняет вставку-или-обновление одним запросом. Строка с
// совпадающей ставкой не обновляется и не попадает в результат; гонки
// конкурентных загрузок разрешает ON CONFLICT на стороне базы.
func (r *TariffRepo) Upsert(ctx context.Context, tariffs []domain.Tariff) ([]domain.Tariff, error) {
	ins := qb.Insert(tariffsTable).Columns("date", "cargo_type", "rate")
	for _, t := range tariffs {
		ins = ins.Values(t.Date.Time, t.CargoType, t.Rate)
	}
	query, args, err := ins.
		Suffix(`ON CONFLICT ON CONSTRAINT unique_date_cargo_type
			DO UPDATE SET rate = EXCLUDED.rate
			WHERE tariffs.rate <> EXCLUDED.rate
			RETURNING date, cargo_type, rate`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db.Query: %w", err)
	}
	defer rows.Close()

	affected := make([]domain.Tariff, 0, len(tariffs))
	for rows.Next() {
		var t domain.Tariff
		if err := rows.Scan(&t.Date, &t.CargoType, &t.Rate); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		affected = append(affected, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	for _, t := range affected {
		r.log.Info("upserted tariff", "tariff", t.String())
		r.batch.Log(r.user, domain.OpUpsert, t.String())
	}
	return affected, nil
}

func (r *TariffRepo) Edit(ctx context.Context, tariff domain.Tariff) (*domain.Tariff, error) {
	query, args, err := qb.
		Update(tariffsTable).
		Set("rate", tariff.Rate).
		Where(sq.Eq{"date": tariff.Date.Time, "cargo_type": tariff.CargoType}).
		Where(sq.NotEq{"rate": tariff.Rate}).
		Suffix("RETURNING date, cargo_type, rate").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var t domain.Tariff
	err = r.q.QueryRow(ctx, query, args...).Scan(&t.Date, &t.CargoType, &t.Rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// существующий тариф с той же ставкой и отсутствующий тариф
			// неразличимы для вызывающей стороны
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	r.log.Info("updated tariff", "tariff", t.String())
	r.batch.Log(r.user, domain.OpUpdate, t.String())
	return &t, nil
}

func (r *TariffRepo) Delete(ctx context.Context, date domain.Date, cargoType string) (*domain.Tariff, error) {
	query, args, err := qb.
		Delete(tariffsTable).
		Where(sq.Eq{"date": date.Time, "cargo_type": cargoType}).
		Suffix("RETURNING date, cargo_type, rate").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var t domain.Tariff
	err = r.q.QueryRow(ctx, query, args...).Scan(&t.Date, &t.CargoType, &t.Rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	r.log.Info("deleted tariff", "tariff", t.String())
	r.batch.Log(r.user, domain.OpDelete, t.String())
	return &t, nil
}

// CargoTypeRepo — репозиторий каталога типов груза.
type CargoTypeRepo struct {
	q     querier
	batch domain.AuditBatch
	user  string
	log   *slog.Logger
}

func NewCargoTypeRepo(q querier, batch domain.AuditBatch, user string, log *slog.Logger) *CargoTypeRepo {
	return &CargoTypeRepo{q: q, batch: batch, user: user, log: log}
}

var _ domain.CargoTypeRepository = (*CargoTypeRepo)(nil)

func (r *CargoTypeRepo) Register(ctx context.Context, names []string) ([]domain.CargoTypeInfo, error) {
	ins := qb.Insert(cargoTypesTable).Columns("name")
	for _, name := range names {
		ins = ins.Values(name)
	}
	query, args, err := ins.
		Suffix("ON CONFLICT (name) DO NOTHING RETURNING id, name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db.Query: %w", err)
	}
	defer rows.Close()

	registered := make([]domain.CargoTypeInfo, 0, len(names))
	for rows.Next() {
		var ct domain.CargoTypeInfo
		if err := rows.Scan(&ct.ID, &ct.Name); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		registered = append(registered, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	for _, ct := range registered {
		r.log.Info("registered cargo type", "cargo_type", ct.String())
		r.batch.Log(r.user, domain.OpRegister, ct.String())
	}
	return registered, nil
}

func (r *CargoTypeRepo) List(ctx context.Context) ([]domain.CargoTypeInfo, error) {
	query, args, err := qb.
		Select("id", "name").
		From(cargoTypesTable).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db.Query: %w", err)
	}
	defer rows.Close()

	var result []domain.CargoTypeInfo
	for rows.Next() {
		var ct domain.CargoTypeInfo
		if err := rows.Scan(&ct.ID, &ct.Name); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result = append(result, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return result, nil
}

// EnsureSchema — создать необходимые таблицы, если отсутствуют.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tariffs (
  date date NOT NULL,
  cargo_type varchar(50) NOT NULL,
  rate double precision NOT NULL,
  CONSTRAINT unique_date_cargo_type PRIMARY KEY (date, cargo_type)
);
CREATE TABLE IF NOT EXISTS cargo_types (
  id bigserial PRIMARY KEY,
  name varchar(50) NOT NULL UNIQUE
);`)
	return err
}
