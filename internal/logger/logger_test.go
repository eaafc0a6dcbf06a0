package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewSetsLevel(t *testing.T) {
	log := New("debug", "development")
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	log := New("chatty", "development")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewProductionUsesJSON(t *testing.T) {
	log := New("info", "production")
	_, ok := log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestWithComponent(t *testing.T) {
	log := New("info", "development")
	entry := WithComponent(log, "loader")
	assert.Equal(t, "loader", entry.Data["component"])
}
