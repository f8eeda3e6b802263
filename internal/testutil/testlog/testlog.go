package testlog

import (
	"testing"

	"github.com/danmuck/distask/internal/logging"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}

// Dir starts the test log and returns a temp dir for trace sinks.
func Dir(t *testing.T) string {
	t.Helper()
	Start(t)
	return t.TempDir()
}
