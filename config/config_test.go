package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 5*time.Second, c.StopTimeout)
	assert.True(t, c.Foreground)
	assert.Zero(t, c.CPULimit, "默认不限制 CPU 带宽")
	assert.Empty(t, c.CPUSet, "默认不限定 CPU 核心")
	assert.NotContains(t, c.DataDir, "~", "家目录应当被展开")
}

func TestLoadResourceLimits(t *testing.T) {
	t.Setenv("RUNDROID_CPU_LIMIT", "150")
	t.Setenv("RUNDROID_CPUSET", "0-3")
	t.Setenv("RUNDROID_MEMORY_LIMIT", "536870912")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(150), c.CPULimit)
	assert.Equal(t, "0-3", c.CPUSet)
	assert.Equal(t, uint64(536870912), c.MemoryLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RUNDROID_DATA_DIR", "/var/lib/rundroid")
	t.Setenv("RUNDROID_LOG_LEVEL", "debug")
	t.Setenv("RUNDROID_STOP_TIMEOUT", "10s")
	t.Setenv("RUNDROID_FOREGROUND", "false")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/rundroid", c.DataDir)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 10*time.Second, c.StopTimeout)
	assert.False(t, c.Foreground)
	assert.Equal(t, filepath.Join("/var/lib/rundroid", "prefixes"), c.PrefixesDir())
}

func TestExpandHome(t *testing.T) {
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	expanded := expandHome("~/x")
	assert.NotContains(t, expanded, "~")
	assert.True(t, filepath.IsAbs(expanded))
}
