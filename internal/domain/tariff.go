package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxCargoTypeLen — максимальная длина названия типа груза в символах.
const MaxCargoTypeLen = 50

// Tariff — тарифная ставка для типа груза на календарную дату.
type Tariff struct {
	Date      Date    `json:"date"`
	CargoType string  `json:"cargo_type"`
	Rate      float64 `json:"rate"`
}

// String returns a compact deterministic representation used in audit
// messages and logs.
func (t Tariff) String() string {
	b, _ := json.Marshal(t)
	return string(b)
}

// CargoTypeInfo — зарегистрированный тип груза с суррогатным идентификатором.
type CargoTypeInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c CargoTypeInfo) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// Операции, фиксируемые в аудите.
const (
	OpUpsert   = "upsert"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpRegister = "register"
)

// AuditEntry — запись аудита об одной операции над хранилищем.
type AuditEntry struct {
	User      string `json:"user"`
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

// ValidateCargoType проверяет название типа груза: непустое, не длиннее
// MaxCargoTypeLen символов.
func ValidateCargoType(cargoType string) error {
	if cargoType == "" {
		return fmt.Errorf("%w: cargo type must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(cargoType) > MaxCargoTypeLen {
		return fmt.Errorf("%w: cargo type must be at most %d characters", ErrValidation, MaxCargoTypeLen)
	}
	return nil
}

// ValidateRate проверяет ставку: конечное число строго больше нуля.
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: rate must be a finite number", ErrValidation)
	}
	if rate <= 0 {
		return fmt.Errorf("%w: rate must be greater than 0", ErrValidation)
	}
	return nil
}

// Validate проверяет все поля тарифа.
func (t Tariff) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if err := ValidateCargoType(t.CargoType); err != nil {
		return err
	}
	return ValidateRate(t.Rate)
}

// ValidateTariffList проверяет список тарифов, подаваемых одним запросом:
// список непуст, каждый тариф корректен, тип груза встречается не более
// одного раза.
func ValidateTariffList(tariffs []Tariff) error {
	if len(tariffs) == 0 {
		return fmt.Errorf("%w: tariff list must not be empty", ErrValidation)
	}

	indexesByType := make(map[string][]int, len(tariffs))
	var order []string
	for i, t := range tariffs {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tariff at index %d: %w", i, err)
		}
		if _, seen := indexesByType[t.CargoType]; !seen {
			order = append(order, t.CargoType)
		}
		indexesByType[t.CargoType] = append(indexesByType[t.CargoType], i)
	}

	var problems []string
	for _, name := range order {
		if indexes := indexesByType[name]; len(indexes) > 1 {
			problems = append(problems,
				fmt.Sprintf("at indexes %s share the same cargo type %q", formatIndexList(indexes), name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: tariffs %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func formatIndexList(indexes []int) string {
	parts := make([]string, len(indexes))
	for i, idx := range indexes {
		parts[i] = strconv.Itoa(idx)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
