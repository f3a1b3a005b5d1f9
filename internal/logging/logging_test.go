package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New("prod", "debug", "api-server").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("prod", "loud", "api-server").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("dev", "", "seed").GetLevel())
}
