package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"report_wizard/internal/config"

	"github.com/sirupsen/logrus"
)

const (
	// Типы хранилищ
	StorageTypeLocal = "local"
	StorageTypeS3    = "s3"

	// Префиксы ключей
	UploadsPrefix = "uploads"
	ReportsPrefix = "reports"

	maxKeyLength = 1024
)

// ErrNotFound возвращается, когда объекта с указанным ключом нет в хранилище
var ErrNotFound = errors.New("file not found")

// Storage интерфейс для работы с файловыми хранилищами (логотипы и готовые отчеты)
type Storage interface {
	Save(ctx context.Context, key string, reader io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadKey возвращает ключ загруженного логотипа
func UploadKey(filename string) string {
	return path.Join(UploadsPrefix, filename)
}

// ReportKey возвращает ключ сгенерированного отчета
func ReportKey(filename string, at time.Time) string {
	return path.Join(ReportsPrefix, at.UTC().Format("2006/01/02"), filename)
}

// ValidateKey проверяет ключ файла
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("ключ файла не может быть пустым")
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("ключ файла слишком длинный: %d символов (максимум %d)", len(key), maxKeyLength)
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("ключ файла не может содержать '..'")
	}
	return nil
}

// NewStorageFromConfig создает хранилище из конфигурации и оборачивает его в middleware
func NewStorageFromConfig(cfg config.Config, logger *logrus.Logger) (Storage, error) {
	var (
		backend Storage
		err     error
	)

	switch cfg.Storage.Type {
	case StorageTypeS3:
		backend, err = NewS3Storage(S3Config{
			Region:         cfg.Storage.S3.Region,
			Bucket:         cfg.Storage.S3.Bucket,
			Endpoint:       cfg.Storage.S3.Endpoint,
			AccessKey:      cfg.Storage.S3.AccessKey,
			SecretKey:      cfg.Storage.S3.SecretKey,
			ForcePathStyle: true,
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания S3 хранилища: %w", err)
		}

	case StorageTypeLocal:
		basePath, absErr := filepath.Abs(cfg.Storage.BasePath)
		if absErr != nil {
			return nil, fmt.Errorf("ошибка определения базового пути: %w", absErr)
		}
		backend, err = NewLocalStorage(LocalConfig{
			BasePath:    basePath,
			Permissions: 0755,
			CreateDirs:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания локального хранилища: %w", err)
		}

	default:
		return nil, fmt.Errorf("неподдерживаемый тип хранилища: %s", cfg.Storage.Type)
	}

	return Wrap(backend, logger), nil
}

// Wrap добавляет к хранилищу валидацию ключей и логирование
func Wrap(backend Storage, logger *logrus.Logger) Storage {
	wrapped := NewValidationMiddleware(backend)
	if logger != nil {
		wrapped = NewLoggingMiddleware(wrapped, logger)
	}
	return wrapped
}
