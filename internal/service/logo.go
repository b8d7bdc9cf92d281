package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"report_wizard/internal/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UploadsURLPrefix is the public path uploaded logos are served from
const UploadsURLPrefix = "/static/uploads/"

// UploadedLogo is the response to a successful logo upload
type UploadedLogo struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// LogoImage is a logo loaded for embedding into a report
type LogoImage struct {
	Extension string
	Data      []byte
}

// LogoService stores and loads report logos
type LogoService struct {
	files      storage.Storage
	maxSize    int64
	extensions []string
	logger     *logrus.Logger
}

// NewLogoService создает сервис логотипов
func NewLogoService(files storage.Storage, maxSize int64, extensions []string, logger *logrus.Logger) *LogoService {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		normalized = append(normalized, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	return &LogoService{
		files:      files,
		maxSize:    maxSize,
		extensions: normalized,
		logger:     logger,
	}
}

// Upload validates and stores a logo under a fresh random name
func (s *LogoService) Upload(ctx context.Context, originalName string, size int64, r io.Reader) (*UploadedLogo, error) {
	if originalName == "" {
		return nil, fmt.Errorf("%w: no file selected", ErrInvalidRequest)
	}

	ext := fileExtension(originalName)
	if !s.allowed(ext) {
		return nil, fmt.Errorf("%w: file extension not allowed, allowed extensions: %s",
			ErrInvalidRequest, strings.Join(s.extensions, ", "))
	}
	if size > s.maxSize {
		return nil, fmt.Errorf("%w: file too large, maximum size is %d bytes", ErrInvalidRequest, s.maxSize)
	}

	// size may be unknown (-1) or wrong, so the body is capped as well
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: file too large, maximum size is %d bytes", ErrInvalidRequest, s.maxSize)
	}

	filename := uuid.New().String() + "." + ext
	if err := s.files.Save(ctx, storage.UploadKey(filename), bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save logo: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"original": originalName,
		"filename": filename,
		"size":     len(data),
	}).Info("Logo uploaded")

	return &UploadedLogo{Path: UploadsURLPrefix + filename, Filename: filename}, nil
}

// Open returns a stored logo by its generated filename
func (s *LogoService) Open(ctx context.Context, filename string) (io.ReadCloser, error) {
	if filename == "" || strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return nil, fmt.Errorf("%w: invalid filename %q", ErrInvalidRequest, filename)
	}

	key := storage.UploadKey(filename)
	ok, err := s.files.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check logo %s: %w", filename, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return s.files.Get(ctx, key)
}

// Load reads a logo referenced by its public path for embedding into a report
func (s *LogoService) Load(ctx context.Context, logoPath string) (*LogoImage, error) {
	filename := path.Base(strings.TrimPrefix(logoPath, UploadsURLPrefix))
	ext := fileExtension(filename)
	if !s.allowed(ext) {
		return nil, fmt.Errorf("unsupported logo type %q", ext)
	}

	rc, err := s.Open(ctx, filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	return &LogoImage{Extension: ext, Data: data}, nil
}

func (s *LogoService) allowed(ext string) bool {
	for _, e := range s.extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func fileExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
