package domain

import "context"

// TariffRepository — порт операций над тарифами. Все методы выполняются
// в транзакционной сессии, открытой вызывающей стороной; репозиторий сам
// транзакции не начинает и не фиксирует.
type TariffRepository interface {
	// Fetch возвращает тариф по ключу (дата, тип груза) либо ErrNotFound.
	Fetch(ctx context.Context, date Date, cargoType string) (*Tariff, error)
	// Upsert вставляет новые тарифы и обновляет существующие с отличающейся
	// ставкой одним атомарным запросом; возвращает только затронутые строки.
	Upsert(ctx context.Context, tariffs []Tariff) ([]Tariff, error)
	// Edit обновляет ставку тарифа; ErrNotFound, если тарифа нет или ставка
	// уже совпадает (эти случаи намеренно неразличимы).
	Edit(ctx context.Context, tariff Tariff) (*Tariff, error)
	// Delete удаляет тариф и возвращает прежнее значение либо ErrNotFound.
	Delete(ctx context.Context, date Date, cargoType string) (*Tariff, error)
}

// CargoTypeRepository — порт каталога зарегистрированных типов груза.
type CargoTypeRepository interface {
	// Register регистрирует новые имена; уже известные пропускаются.
	// Возвращает только вновь зарегистрированные записи.
	Register(ctx context.Context, names []string) ([]CargoTypeInfo, error)
	List(ctx context.Context) ([]CargoTypeInfo, error)
}

// Session — транзакционная сессия на один запрос. Commit фиксирует
// транзакцию хранилища и лишь затем отправляет накопленный батч аудита;
// Rollback отбрасывает и то и другое. Rollback после Commit — no-op.
type Session interface {
	Tariffs() TariffRepository
	CargoTypes() CargoTypeRepository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Sessions — фабрика транзакционных сессий поверх пула соединений.
type Sessions interface {
	Begin(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
}

// AuditBatch — батч записей аудита одной логической сессии.
type AuditBatch interface {
	// Log сериализует запись и добавляет её в батч; при переполнении батча
	// текущий отправляется немедленно. Ошибки доставки не возвращаются.
	Log(user, operation, message string)
	// Flush отправляет батч одним блоком независимо от заполненности.
	Flush(ctx context.Context) error
	// Discard отбрасывает накопленные записи без отправки.
	Discard()
}

// AuditSink — источник батчей аудита; одно подключение к транспорту
// на процесс.
type AuditSink interface {
	Batch() AuditBatch
}

// Общие доменные ошибки
var (
	ErrNotFound   = notFoundError("not found")
	ErrValidation = validationError("invalid data")
)

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

type validationError string

func (e validationError) Error() string { return string(e) }
