package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"report_wizard/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var tinyPNG = func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 400, 100))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

func newTestLogoService(t *testing.T, maxSize int64) *LogoService {
	return NewLogoService(setupLocalStorage(t), maxSize, []string{"png", ".JPG", "jpeg", "svg"}, setupTestLogger())
}

func TestLogoUpload(t *testing.T) {
	svc := newTestLogoService(t, 1024*1024)
	ctx := context.Background()

	logo, err := svc.Upload(ctx, "Company Logo.PNG", int64(len(tinyPNG)), bytes.NewReader(tinyPNG))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(logo.Filename, ".png"))
	assert.Len(t, logo.Filename, 36+len(".png"))
	assert.Equal(t, UploadsURLPrefix+logo.Filename, logo.Path)

	rc, err := svc.Open(ctx, logo.Filename)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, tinyPNG, data)

	loaded, err := svc.Load(ctx, logo.Path)
	require.NoError(t, err)
	assert.Equal(t, "png", loaded.Extension)
	assert.Equal(t, tinyPNG, loaded.Data)
}

func TestLogoUploadRejects(t *testing.T) {
	svc := newTestLogoService(t, 16)
	ctx := context.Background()

	tests := []struct {
		name     string
		filename string
		size     int64
		body     string
	}{
		{name: "no file", filename: "", size: 1, body: "x"},
		{name: "extension", filename: "logo.gif", size: 1, body: "x"},
		{name: "no extension", filename: "logo", size: 1, body: "x"},
		{name: "declared size", filename: "logo.png", size: 17, body: "x"},
		{name: "actual size", filename: "logo.svg", size: -1, body: strings.Repeat("x", 17)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tt.filename, tt.size, strings.NewReader(tt.body))
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestLogoOpen(t *testing.T) {
	svc := newTestLogoService(t, 1024)
	ctx := context.Background()

	_, err := svc.Open(ctx, "../secret.png")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Open(ctx, "missing.png")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Load(ctx, "/static/uploads/logo.bmp")
	assert.Error(t, err)
}

func TestLogoOpenChecksExistence(t *testing.T) {
	ctx := context.Background()

	mockStorage := new(MockStorage)
	mockStorage.On("Exists", mock.Anything, "uploads/gone.png").Return(false, nil)
	mockStorage.On("Exists", mock.Anything, "uploads/broken.png").Return(false, errors.New("s3 unavailable"))
	svc := NewLogoService(mockStorage, 1024, []string{"png"}, setupTestLogger())

	_, err := svc.Open(ctx, "gone.png")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Open(ctx, "broken.png")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	assert.Contains(t, err.Error(), "s3 unavailable")

	mockStorage.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	mockStorage.AssertExpectations(t)
}

func TestLogoFormatScalesDown(t *testing.T) {
	opts := logoFormat(&LogoImage{Extension: "png", Data: tinyPNG})
	// 400x100 is limited by height first (0.8) then width (0.5)
	assert.InDelta(t, 0.5, opts.ScaleX, 0.0001)
	assert.InDelta(t, 0.5, opts.ScaleY, 0.0001)

	svg := logoFormat(&LogoImage{Extension: "svg", Data: []byte("<svg/>")})
	assert.Equal(t, 1.0, svg.ScaleX)
}
