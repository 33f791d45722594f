package usecase

import (
	"context"

	"github.com/example/insurance-tariff-service/internal/domain"
)

// Входные данные сценариев уже проверены валидатором HTTP-слоя;
// сценарии владеют жизненным циклом сессии: begin, defer rollback, commit.

// EvaluateCost — рассчитать стоимость страхования: ставка тарифа на дату,
// умноженная на объявленную цену.
type EvaluateCost struct {
	DB domain.Sessions
}

func (uc EvaluateCost) Execute(ctx context.Context, date domain.Date, cargoType string, declaredPrice float64) (cost float64, err error) {
	defer func() { observe("evaluate_cost", err) }()

	sess, err := uc.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Rollback(ctx)

	tariff, err := sess.Tariffs().Fetch(ctx, date, cargoType)
	if err != nil {
		return 0, err
	}
	return tariff.Rate * declaredPrice, nil
}

// LoadTariffs — загрузить тарифы: вставка новых и обновление существующих
// с отличающейся ставкой. Возвращает только затронутые тарифы.
type LoadTariffs struct {
	DB domain.Sessions
}

func (uc LoadTariffs) Execute(ctx context.Context, tariffs []domain.Tariff) (affected []domain.Tariff, err error) {
	defer func() { observe("load", err) }()

	sess, err := uc.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	affected, err = sess.Tariffs().Upsert(ctx, tariffs)
	if err != nil {
		return nil, err
	}
	if err = sess.Commit(ctx); err != nil {
		return nil, err
	}
	return affected, nil
}

// EditTariff — изменить ставку существующего тарифа.
type EditTariff struct {
	DB domain.Sessions
}

func (uc EditTariff) Execute(ctx context.Context, tariff domain.Tariff) (updated *domain.Tariff, err error) {
	defer func() { observe("update", err) }()

	sess, err := uc.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	updated, err = sess.Tariffs().Edit(ctx, tariff)
	if err != nil {
		return nil, err
	}
	if err = sess.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTariff — удалить тариф и вернуть прежнее значение.
type DeleteTariff struct {
	DB domain.Sessions
}

func (uc DeleteTariff) Execute(ctx context.Context, date domain.Date, cargoType string) (deleted *domain.Tariff, err error) {
	defer func() { observe("delete", err) }()

	sess, err := uc.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	deleted, err = sess.Tariffs().Delete(ctx, date, cargoType)
	if err != nil {
		return nil, err
	}
	if err = sess.Commit(ctx); err != nil {
		return nil, err
	}
	return deleted, nil
}

// RegisterCargoTypes — зарегистрировать новые типы груза в каталоге.
type RegisterCargoTypes struct {
	DB domain.Sessions
}

func (uc RegisterCargoTypes) Execute(ctx context.Context, names []string) (registered []domain.CargoTypeInfo, err error) {
	defer func() { observe("register_cargo_types", err) }()

	sess, err := uc.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	registered, err = sess.CargoTypes().Register(ctx, names)
	if err != nil {
		return nil, err
	}
	if err = sess.Commit(ctx); err != nil {
		return nil, err
	}
	return registered, nil
}

// ListCargoTypes — получить каталог зарегистрированных типов груза.
type ListCargoTypes struct {
	DB domain.Sessions
}

func (uc ListCargoTypes) Execute(ctx context.Context) (result []domain.CargoTypeInfo, err error) {
	defer func() { observe("list_cargo_types", err) }()

	sess, err := uc.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	return sess.CargoTypes().List(ctx)
}
