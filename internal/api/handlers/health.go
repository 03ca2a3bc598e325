// Пакет handlers — служебные endpoints сервиса:
// /health/live, /health/ready и /metrics.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/itadmin/internal/config"
)

// Статусы проверок готовности.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает StatusOK, StatusDegraded или StatusFail и пояснение.
	CheckReady() (status string, message string)
}

type namedCheck struct {
	name    string
	checker ReadinessChecker
}

type HealthHandler struct {
	checks  []namedCheck
	metrics http.Handler
	now     func() time.Time
}

// NewHealthHandler создаёт обработчик с обязательной проверкой PostgreSQL.
// При pgChecker == nil readiness всегда отвечает 503.
func NewHealthHandler(pgChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checks:  []namedCheck{{name: "postgresql", checker: pgChecker}},
		metrics: promhttp.Handler(),
		now:     time.Now,
	}
}

// WithDependencies добавляет в readiness результат мониторинга зависимостей.
func (h *HealthHandler) WithDependencies(checker ReadinessChecker) *HealthHandler {
	h.checks = append(h.checks, namedCheck{name: "dependencies", checker: checker})
	return h
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// probeResponse — тело ответа обоих probe; checks только у readiness.
type probeResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

func (h *HealthHandler) probe(status string) probeResponse {
	return probeResponse{
		Status:    status,
		Service:   config.ServiceName,
		Version:   config.Version,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
}

// HealthLive отвечает 200, пока процесс обслуживает запросы.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.probe(StatusOK))
}

// HealthReady опрашивает все проверки. 503 только при итоговом fail,
// degraded остаётся 200, чтобы под не выводился из балансировки.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	results := make(map[string]checkResult, len(h.checks))
	statuses := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		res := checkResult{Status: StatusFail, Message: "не инициализирован"}
		if c.checker != nil {
			res.Status, res.Message = c.checker.CheckReady()
		}
		results[c.name] = res
		statuses = append(statuses, res.Status)
	}

	resp := h.probe(overallStatus(statuses...))
	resp.Checks = results

	code := http.StatusOK
	if resp.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

var statusRank = map[string]int{StatusOK: 0, StatusDegraded: 1, StatusFail: 2}

// overallStatus — худший из статусов. Неизвестный статус считается fail.
func overallStatus(statuses ...string) string {
	worst := StatusOK
	for _, s := range statuses {
		rank, known := statusRank[s]
		if !known {
			return StatusFail
		}
		if rank > statusRank[worst] {
			worst = s
		}
	}
	return worst
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
