package database

import (
	"io"
	"testing"

	"report_wizard/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabaseSQLite(t *testing.T) {
	db, err := NewDatabase(Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	require.NoError(t, AutoMigrate(db, log))

	report := &models.GeneratedReport{Title: "Weekly", Status: models.StatusCompleted}
	require.NoError(t, db.Create(report).Error)
	assert.NotZero(t, report.ID)
}

func TestNewDatabaseUnknownDriver(t *testing.T) {
	_, err := NewDatabase(Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
