package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscout/internal/lead"
)

func TestDisabledManagerRefusesToStart(t *testing.T) {
	m := NewManager(Config{Disabled: true}, nil)
	assert.False(t, m.Enabled())

	_, err := m.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, lead.ErrNotConfigured)
	assert.Nil(t, m.browser)
}

func TestNilManagerIsDisabled(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled())
}

func TestNavigationTimeoutDefault(t *testing.T) {
	assert.Equal(t, 30*time.Second, Config{}.navigationTimeout())
	assert.Equal(t, 5*time.Second, Config{NavigationTimeout: 5 * time.Second}.navigationTimeout())
}

func TestShutdownWithoutStart(t *testing.T) {
	m := NewManager(Config{NoSandbox: true}, nil)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestInstallPrefersConfiguredBinary(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "chromium")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	m := NewManager(Config{Bin: bin}, nil)
	path, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bin, path)
}

func TestInstallRejectsMissingConfiguredBinary(t *testing.T) {
	m := NewManager(Config{Bin: filepath.Join(t.TempDir(), "missing-chromium")}, nil)
	path, err := m.Install(context.Background())
	require.Error(t, err)
	assert.Empty(t, path)
	assert.Contains(t, err.Error(), "configured browser binary")
}

func TestInstallRejectsNonExecutableBinary(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "chromium")
	require.NoError(t, os.WriteFile(bin, []byte("not a browser"), 0o644))

	_, err := NewManager(Config{Bin: bin}, nil).Install(context.Background())
	require.Error(t, err)
}

func TestLaunchFlagsParsed(t *testing.T) {
	m := NewManager(Config{Flags: []string{"--disable-gpu", "window-size=1280,800"}}, nil)
	l := m.newLauncher(context.Background())
	assert.True(t, l.Has("disable-gpu"))
	assert.Equal(t, "1280,800", l.Get("window-size"))
}
