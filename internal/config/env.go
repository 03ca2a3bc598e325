package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader читает переменные окружения и запоминает первую ошибку.
// После ошибки все чтения возвращают значения по умолчанию, так что
// Load проверяет r.err один раз в конце секции.
type envReader struct {
	lookup func(string) string
	err    error
}

func newEnvReader() *envReader {
	return &envReader{lookup: os.Getenv}
}

func (r *envReader) failf(key, format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %s", key, fmt.Sprintf(format, args...))
	}
}

func (r *envReader) raw(key string) string {
	return strings.TrimSpace(r.lookup(key))
}

func (r *envReader) str(key, def string) string {
	if v := r.raw(key); v != "" {
		return v
	}
	return def
}

func (r *envReader) required(key string) string {
	v := r.raw(key)
	if v == "" {
		r.failf(key, "обязательная переменная окружения не задана")
	}
	return v
}

// oneOf принимает только перечисленные значения; первое — по умолчанию.
func (r *envReader) oneOf(key string, allowed ...string) string {
	v := r.str(key, allowed[0])
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	r.failf(key, "недопустимое значение %q, допустимые: %s", v, strings.Join(allowed, ", "))
	return allowed[0]
}

// intRange читает целое и проверяет, что оно лежит в [lo, hi].
func (r *envReader) intRange(key string, def, lo, hi int) int {
	v := r.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.failf(key, "некорректное целое число: %q", v)
		return def
	}
	if n < lo || n > hi {
		r.failf(key, "значение %d вне допустимого диапазона %d-%d", n, lo, hi)
		return def
	}
	return n
}

func (r *envReader) bool(key string, def bool) bool {
	v := r.raw(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.failf(key, "некорректное логическое значение: %q", v)
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := r.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.failf(key, "некорректная длительность: %q (формат Go: 30s, 15m, 1h)", v)
		return def
	}
	return d
}

func (r *envReader) timeOfDay(key, def string) TimeOfDay {
	at, err := ParseTimeOfDay(r.str(key, def))
	if err != nil {
		r.failf(key, "%v", err)
	}
	return at
}
