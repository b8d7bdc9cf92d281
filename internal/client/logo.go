package client

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"report_wizard/internal/wizard"
)

// ReadLogoFile loads a logo from disk, taking its content type from the extension.
func ReadLogoFile(path string) (wizard.LogoFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return wizard.LogoFile{}, fmt.Errorf("read logo: %w", err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}

	return wizard.LogoFile{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
