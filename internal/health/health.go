// Package health отдаёт состояние payrecon для оркестратора: /healthz, /livez и /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Status — состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse возвращает более тяжёлое из двух состояний.
func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusUnhealthy:
			return 2
		case StatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки компонентов. Проверки выполняются параллельно,
// так что медленный компонент не задерживает остальные дольше своего таймаута.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	now      func() time.Time
}

// NewHandler создаёт health handler.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
		now:      time.Now,
	}
}

// RegisterChecker добавляет проверку. Повторная регистрация под тем же именем заменяет её.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Evaluate выполняет все проверки и возвращает сводный ответ.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	snapshot := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		snapshot[name] = c
	}
	h.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make(map[string]Check, len(snapshot))
	)
	for name, checker := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check := checker.Check(ctx)
			resMu.Lock()
			results[name] = check
			resMu.Unlock()
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for _, check := range results {
		overall = worse(overall, check.Status)
	}
	return Response{
		Status:        overall,
		Timestamp:     h.now().UTC(),
		Checks:        results,
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
	}
}

// ServeHTTP отдаёт JSON со всеми проверками; 503 только при unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(resp.Status))
	_ = json.NewEncoder(w).Encode(resp)
}

// LivenessHandler всегда отвечает 200: процесс жив, пока отвечает.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// ReadinessHandler отвечает 503, пока недоступен хоть один обязательный компонент.
// Degraded готовность не снимает: уведомления Mollie всё равно принимаются.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if httpStatus(h.Evaluate(r.Context()).Status) != http.StatusOK {
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ready")
}

func httpStatus(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// PingChecker вызывает ping с таймаутом.
// Ошибка обязательного компонента даёт unhealthy, необязательного: degraded.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	critical bool
	timeout  time.Duration
}

// NewPingChecker создаёт проверку обязательного компонента, например PostgreSQL.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, critical: true, timeout: defaultCheckTimeout}
}

// NewOptionalChecker создаёт проверку компонента, без которого сервис продолжает работать.
func NewOptionalChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, timeout: defaultCheckTimeout}
}

// WithTimeout переопределяет таймаут проверки.
func (c *PingChecker) WithTimeout(d time.Duration) *PingChecker {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Check выполняет проверку.
func (c *PingChecker) Check(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.ping(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err == nil {
		return check
	}
	check.Message = err.Error()
	check.Status = StatusDegraded
	if c.critical {
		check.Status = StatusUnhealthy
	}
	return check
}
