package zygote

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecArgs(t *testing.T) {
	s := &Spec{Package: "com.example.app"}
	args := s.Args()
	require.NotEmpty(t, args)
	assert.Equal(t, "/system/bin/app_process64", args[0])
	assert.Contains(t, args, "--nice-name=com.example.app")
	assert.Equal(t, "android.app.ActivityThread", args[len(args)-1])
}

func TestSpecEntry32(t *testing.T) {
	s := &Spec{Package: "com.example.app", Use32Bit: true}
	assert.Equal(t, "/system/bin/app_process32", s.Entry())
}

func TestSpecEnvInSandboxOnly(t *testing.T) {
	s := &Spec{Package: "com.example.app"}
	env := s.Env()
	assert.Contains(t, env, "ANDROID_ROOT=/system")
	assert.Contains(t, env, "ANDROID_DATA=/data")
	assert.Contains(t, env, "ANDROID_RUNTIME_ROOT=/apex/com.android.runtime")
	for _, e := range env {
		assert.NotContains(t, e, "/home/", "环境变量不应包含宿主机路径")
	}
}

func TestValidatePayloadMissingEntry(t *testing.T) {
	root := t.TempDir()
	s := &Spec{Package: "com.example.app"}

	err := s.ValidatePayload(root)
	require.Error(t, err)

	var pe *PayloadError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "/system/bin/app_process64", pe.MissingPath)
}

func TestValidatePayloadComplete(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"bin/app_process64", "lib64/libandroid_runtime.so"} {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte{0x7f}, 0755))
	}

	s := &Spec{Package: "com.example.app"}
	assert.NoError(t, s.ValidatePayload(root))
}

func TestValidatePayloadMissingLibrary(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "bin/app_process64")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte{0x7f}, 0755))

	s := &Spec{Package: "com.example.app"}
	err := s.ValidatePayload(root)
	var pe *PayloadError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "/system/lib64/libandroid_runtime.so", pe.MissingPath)
}
