// Пакет pgtest — запуск PostgreSQL в Docker-контейнере для интеграционных тестов.
// Тесты пропускаются, если не установлена переменная TEST_INTEGRATION.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/itadmin/internal/config"
)

// Config запускает PostgreSQL через testcontainers и возвращает конфигурацию,
// указывающую на контейнер. Контейнер останавливается в t.Cleanup.
func Config(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("itadmin_test"),
		postgres.WithUsername("itadmin"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("IA_DB_HOST", host)
	t.Setenv("IA_DB_PORT", port.Port())
	t.Setenv("IA_DB_NAME", "itadmin_test")
	t.Setenv("IA_DB_USER", "itadmin")
	t.Setenv("IA_DB_PASSWORD", "test-password")
	t.Setenv("IA_DB_SSL_MODE", "disable")
	t.Setenv("IA_TIMEZONE", "UTC")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}
