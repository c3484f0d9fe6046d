package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New("debug", true).GetLevel())
	assert.Equal(t, zerolog.WarnLevel, New("warn", true).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("nonsense", true).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("", true).GetLevel())
}

func TestNewComponent(t *testing.T) {
	log := NewComponent(New("info", true), "worker")
	// Tagged loggers keep their parent's level.
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
