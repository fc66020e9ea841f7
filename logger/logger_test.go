// file: logger/logger_test.go
package logger

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel_ProductionDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogLevel("production")
	t.Cleanup(func() { SetLogLevel("development") })

	Debug().Msg("hidden")
	Info().Msg("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestSetLogLevel_DevelopmentKeepsDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogLevel("development")

	Debug().Str("path", "/Home").Msg("decision")

	assert.Contains(t, buf.String(), `"path":"/Home"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestInitLogger_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitLogger(dir))
	t.Cleanup(func() { SetOutput(os.Stdout) })

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCtx_FallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	Ctx(context.Background()).Info().Msg("global")
	assert.Contains(t, buf.String(), "global")

	var scoped bytes.Buffer
	l := zerolog.New(&scoped)
	ctx := l.WithContext(context.Background())
	Ctx(ctx).Info().Msg("scoped")
	assert.Contains(t, scoped.String(), "scoped")
}
