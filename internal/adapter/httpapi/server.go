package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/insurance-tariff-service/internal/domain"
	"github.com/example/insurance-tariff-service/internal/usecase"
)

// Server — HTTP-роутер сервиса: публичный расчёт стоимости и внутренние
// операции над тарифами и каталогом типов груза.
type Server struct {
	Router *mux.Router
	Log    *slog.Logger
	DB     domain.Sessions

	Evaluate usecase.EvaluateCost
	Load     usecase.LoadTariffs
	Edit     usecase.EditTariff
	Delete   usecase.DeleteTariff
	Register usecase.RegisterCargoTypes
	ListCT   usecase.ListCargoTypes
}

func NewServer(db domain.Sessions, log *slog.Logger) *Server {
	s := &Server{
		Router:   mux.NewRouter(),
		Log:      log,
		DB:       db,
		Evaluate: usecase.EvaluateCost{DB: db},
		Load:     usecase.LoadTariffs{DB: db},
		Edit:     usecase.EditTariff{DB: db},
		Delete:   usecase.DeleteTariff{DB: db},
		Register: usecase.RegisterCargoTypes{DB: db},
		ListCT:   usecase.ListCargoTypes{DB: db},
	}
	s.Router.HandleFunc("/api/public/evaluate_cost", s.handleEvaluateCost).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/internal/tariffs/load", s.handleLoadTariffs).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/internal/tariffs/update", s.handleEditTariff).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/internal/tariffs/delete", s.handleDeleteTariff).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/internal/cargo_types/register", s.handleRegisterCargoTypes).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/internal/cargo_types", s.handleListCargoTypes).Methods(http.MethodGet)
	s.Router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, detailResponse{Detail: msg})
}

// decode разбирает тело запроса; ошибка разбора отклоняется как ошибка
// валидации (422).
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondValidation(w, []string{"at 'body' " + validationDetail(err)})
		return false
	}
	return true
}

// respondValidation логирует все ошибки валидации запроса и отвечает 422.
func (s *Server) respondValidation(w http.ResponseWriter, msgs []string) {
	noun := "error"
	if len(msgs) != 1 {
		noun = "errors"
	}
	detail := strings.Join(msgs, "; ")
	s.Log.Error(fmt.Sprintf("%d validation %s in the recent request", len(msgs), noun), "detail", detail)
	writeDetail(w, http.StatusUnprocessableEntity, detail)
}

func (s *Server) respondInternal(w http.ResponseWriter, err error) {
	s.Log.Error("request failed", "err", err)
	writeDetail(w, http.StatusInternalServerError, "internal error")
}

// validationDetail убирает из сообщения префикс доменной ошибки валидации.
func validationDetail(err error) string {
	return strings.ReplaceAll(err.Error(), domain.ErrValidation.Error()+": ", "")
}

func checkPositive(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "value must be a finite number"
	}
	if v <= 0 {
		return "value must be greater than 0"
	}
	return ""
}

type evaluateCostRequest struct {
	InsuranceDate *domain.Date `json:"insurance_date"`
	CargoType     *string      `json:"cargo_type"`
	DeclaredPrice *float64     `json:"declared_price"`
}

func (s *Server) handleEvaluateCost(w http.ResponseWriter, r *http.Request) {
	var req evaluateCostRequest
	if !s.decode(w, r, &req) {
		return
	}

	var msgs []string
	if req.InsuranceDate == nil {
		msgs = append(msgs, "at 'insurance_date' field is required")
	}
	if req.CargoType == nil {
		msgs = append(msgs, "at 'cargo_type' field is required")
	} else if err := domain.ValidateCargoType(*req.CargoType); err != nil {
		msgs = append(msgs, "at 'cargo_type' "+validationDetail(err))
	}
	if req.DeclaredPrice == nil {
		msgs = append(msgs, "at 'declared_price' field is required")
	} else if msg := checkPositive(*req.DeclaredPrice); msg != "" {
		msgs = append(msgs, "at 'declared_price' "+msg)
	}
	if len(msgs) > 0 {
		s.respondValidation(w, msgs)
		return
	}

	cost, err := s.Evaluate.Execute(r.Context(), *req.InsuranceDate, *req.CargoType, *req.DeclaredPrice)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDetail(w, http.StatusNotFound,
				fmt.Sprintf("Tariff for %q on %s is not found", *req.CargoType, req.InsuranceDate))
			return
		}
		s.respondInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cost)
}

type loadTariffEntry struct {
	CargoType *string  `json:"cargo_type"`
	Rate      *float64 `json:"rate"`
}

func (s *Server) handleLoadTariffs(w http.ResponseWriter, r *http.Request) {
	var payload map[domain.Date][]loadTariffEntry
	if !s.decode(w, r, &payload) {
		return
	}

	var msgs []string
	if len(payload) == 0 {
		s.respondValidation(w, []string{"at 'body' tariff data must not be empty"})
		return
	}

	dates := make([]domain.Date, 0, len(payload))
	for date := range payload {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].String() < dates[j].String() })

	var tariffs []domain.Tariff
	for _, date := range dates {
		entries := payload[date]
		perDate := make([]domain.Tariff, 0, len(entries))
		missing := false
		for i, e := range entries {
			if e.CargoType == nil {
				msgs = append(msgs, fmt.Sprintf("at '%s[%d].cargo_type' field is required", date, i))
				missing = true
			}
			if e.Rate == nil {
				msgs = append(msgs, fmt.Sprintf("at '%s[%d].rate' field is required", date, i))
				missing = true
			}
			if missing {
				continue
			}
			perDate = append(perDate, domain.Tariff{Date: date, CargoType: *e.CargoType, Rate: *e.Rate})
		}
		if missing {
			continue
		}
		if err := domain.ValidateTariffList(perDate); err != nil {
			msgs = append(msgs, fmt.Sprintf("at %q %s", date.String(), validationDetail(err)))
			continue
		}
		tariffs = append(tariffs, perDate...)
	}
	if len(msgs) > 0 {
		s.respondValidation(w, msgs)
		return
	}

	affected, err := s.Load.Execute(r.Context(), tariffs)
	if err != nil {
		s.respondInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, affected)
}

type editTariffRequest struct {
	TariffDate *domain.Date `json:"tariff_date"`
	CargoType  *string      `json:"cargo_type"`
	NewRate    *float64     `json:"new_rate"`
}

func (s *Server) handleEditTariff(w http.ResponseWriter, r *http.Request) {
	var req editTariffRequest
	if !s.decode(w, r, &req) {
		return
	}

	var msgs []string
	if req.TariffDate == nil {
		msgs = append(msgs, "at 'tariff_date' field is required")
	}
	if req.CargoType == nil {
		msgs = append(msgs, "at 'cargo_type' field is required")
	} else if err := domain.ValidateCargoType(*req.CargoType); err != nil {
		msgs = append(msgs, "at 'cargo_type' "+validationDetail(err))
	}
	if req.NewRate == nil {
		msgs = append(msgs, "at 'new_rate' field is required")
	} else if err := domain.ValidateRate(*req.NewRate); err != nil {
		msgs = append(msgs, "at 'new_rate' "+validationDetail(err))
	}
	if len(msgs) > 0 {
		s.respondValidation(w, msgs)
		return
	}

	tariff := domain.Tariff{Date: *req.TariffDate, CargoType: *req.CargoType, Rate: *req.NewRate}
	if _, err := s.Edit.Execute(r.Context(), tariff); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// тариф отсутствует либо уже имеет такую ставку
			w.WriteHeader(http.StatusNotModified)
			return
		}
		s.respondInternal(w, err)
		return
	}
	writeDetail(w, http.StatusOK, "Success")
}

type deleteTariffRequest struct {
	TariffDate *domain.Date `json:"tariff_date"`
	CargoType  *string      `json:"cargo_type"`
}

func (s *Server) handleDeleteTariff(w http.ResponseWriter, r *http.Request) {
	var req deleteTariffRequest
	if !s.decode(w, r, &req) {
		return
	}

	var msgs []string
	if req.TariffDate == nil {
		msgs = append(msgs, "at 'tariff_date' field is required")
	}
	if req.CargoType == nil {
		msgs = append(msgs, "at 'cargo_type' field is required")
	} else if err := domain.ValidateCargoType(*req.CargoType); err != nil {
		msgs = append(msgs, "at 'cargo_type' "+validationDetail(err))
	}
	if len(msgs) > 0 {
		s.respondValidation(w, msgs)
		return
	}

	deleted, err := s.Delete.Execute(r.Context(), *req.TariffDate, *req.CargoType)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDetail(w, http.StatusNotFound,
				fmt.Sprintf("Tariff for %q on %s is not found", *req.CargoType, req.TariffDate))
			return
		}
		s.respondInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

type registerCargoTypesRequest struct {
	Names []string `json:"names"`
}

func (s *Server) handleRegisterCargoTypes(w http.ResponseWriter, r *http.Request) {
	var req registerCargoTypesRequest
	if !s.decode(w, r, &req) {
		return
	}

	var msgs []string
	if len(req.Names) == 0 {
		msgs = append(msgs, "at 'names' list must not be empty")
	}
	seen := make(map[string]bool, len(req.Names))
	for i, name := range req.Names {
		if err := domain.ValidateCargoType(name); err != nil {
			msgs = append(msgs, fmt.Sprintf("at 'names[%d]' %s", i, validationDetail(err)))
			continue
		}
		if seen[name] {
			msgs = append(msgs, fmt.Sprintf("at 'names[%d]' duplicate cargo type %q", i, name))
		}
		seen[name] = true
	}
	if len(msgs) > 0 {
		s.respondValidation(w, msgs)
		return
	}

	registered, err := s.Register.Execute(r.Context(), req.Names)
	if err != nil {
		s.respondInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registered)
}

func (s *Server) handleListCargoTypes(w http.ResponseWriter, r *http.Request) {
	result, err := s.ListCT.Execute(r.Context())
	if err != nil {
		s.respondInternal(w, err)
		return
	}
	if result == nil {
		result = []domain.CargoTypeInfo{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.Ping(r.Context()); err != nil {
		s.Log.Error("health check failed", "err", err)
		writeDetail(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeDetail(w, http.StatusOK, "ok")
}
