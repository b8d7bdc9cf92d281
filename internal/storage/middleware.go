package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingMiddleware пишет в лог каждую операцию с файлами логотипов и отчетов
type LoggingMiddleware struct {
	storage Storage
	logger  *logrus.Logger
}

// NewLoggingMiddleware создает новый logging middleware
func NewLoggingMiddleware(storage Storage, logger *logrus.Logger) Storage {
	return &LoggingMiddleware{
		storage: storage,
		logger:  logger,
	}
}

// fileKind определяет вид файла по префиксу ключа
func fileKind(key string) string {
	prefix, _, _ := strings.Cut(key, "/")
	switch prefix {
	case UploadsPrefix:
		return "logo"
	case ReportsPrefix:
		return "report"
	default:
		return "other"
	}
}

func (m *LoggingMiddleware) entry(op, key string) *logrus.Entry {
	return m.logger.WithFields(logrus.Fields{
		"operation": op,
		"key":       key,
		"kind":      fileKind(key),
	})
}

// countingReader считает переданные в хранилище байты
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Save логирует сохранение вместе с размером файла
func (m *LoggingMiddleware) Save(ctx context.Context, key string, reader io.Reader) error {
	start := time.Now()
	counter := &countingReader{r: reader}

	err := m.storage.Save(ctx, key, counter)

	logger := m.entry("save", key).WithFields(logrus.Fields{
		"bytes":    counter.n,
		"duration": time.Since(start),
	})
	if err != nil {
		logger.WithError(err).Error("Ошибка сохранения файла")
	} else {
		logger.Info("Файл сохранен")
	}
	return err
}

// Get логирует чтение; отсутствие файла не считается ошибкой сервиса
func (m *LoggingMiddleware) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	reader, err := m.storage.Get(ctx, key)

	logger := m.entry("get", key).WithField("duration", time.Since(start))
	switch {
	case err == nil:
		logger.Debug("Файл получен")
	case errors.Is(err, ErrNotFound):
		logger.Debug("Файл не найден")
	default:
		logger.WithError(err).Warn("Ошибка получения файла")
	}
	return reader, err
}

func (m *LoggingMiddleware) Delete(ctx context.Context, key string) error {
	err := m.storage.Delete(ctx, key)

	logger := m.entry("delete", key)
	if err != nil {
		logger.WithError(err).Error("Ошибка удаления файла")
	} else {
		logger.Info("Файл удален")
	}
	return err
}

func (m *LoggingMiddleware) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := m.storage.Exists(ctx, key)
	if err != nil {
		m.entry("exists", key).WithError(err).Warn("Ошибка проверки файла")
	}
	return ok, err
}

// ValidationMiddleware отклоняет некорректные ключи до обращения к хранилищу
type ValidationMiddleware struct {
	storage Storage
}

func NewValidationMiddleware(storage Storage) Storage {
	return &ValidationMiddleware{storage: storage}
}

func (m *ValidationMiddleware) Save(ctx context.Context, key string, reader io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return m.storage.Save(ctx, key, reader)
}

func (m *ValidationMiddleware) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return m.storage.Get(ctx, key)
}

func (m *ValidationMiddleware) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return m.storage.Delete(ctx, key)
}

func (m *ValidationMiddleware) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	return m.storage.Exists(ctx, key)
}
