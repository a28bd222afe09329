package logs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.FatalLevel, ParseLevel("fatal"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("loud"))
}

func TestNewJSONToFile(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "wg")
	l, err := New(Options{Level: "debug", Format: "json", File: prefix})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	l.WithField("peer", "alice").Info("added")

	matches, err := filepath.Glob(prefix + "_*.log")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"peer":"alice"`)
}

func TestNewBadFile(t *testing.T) {
	_, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "dir", "wg")})
	assert.Error(t, err)
}
