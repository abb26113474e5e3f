package container

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zqzqsb/rundroid/config"
	"github.com/zqzqsb/rundroid/doctor"
)

// e2eManager 构建使用真实宿主机能力的编排器
// 需要无特权用户命名空间和 binderfs，环境不满足时跳过
func e2eManager(t *testing.T) *Manager {
	t.Helper()
	if os.Getenv("RUNDROID_E2E") == "" {
		t.Skip("设置 RUNDROID_E2E=1 运行端到端测试")
	}
	caps := doctor.Detect()
	if !caps.Sandboxable() {
		t.Skip("宿主机缺少用户命名空间或 binderfs 支持")
	}
	cfg := &config.Config{
		DataDir:         t.TempDir(),
		LogLevel:        "debug",
		StopTimeout:     2 * time.Second,
		Seccomp:         false,
		Cgroup:          false,
		RuntimeLogLimit: 1 << 20,
	}
	return NewManager(cfg, caps, nil)
}

// fakePayload 搭一个结构完整但入口不可执行的 payload
func fakePayload(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{"bin/app_process64", "lib64/libandroid_runtime.so"} {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		// 不是合法 ELF，execve 必然失败
		require.NoError(t, os.WriteFile(p, []byte("\x7fnot-an-elf"), 0755))
	}
	return root
}

func TestLaunchAndStopLiveRuntime(t *testing.T) {
	m := e2eManager(t)
	payload := os.Getenv("RUNDROID_E2E_PAYLOAD")
	if payload == "" {
		t.Skip("设置 RUNDROID_E2E_PAYLOAD 指向解包的系统镜像")
	}

	h, err := m.Launch("com.example.app", payload)
	require.NoError(t, err)
	assert.True(t, processAlive(h.PID), "启动后进程应当存活")

	out, err := m.Stop("com.example.app")
	require.NoError(t, err)
	assert.Equal(t, WasRunning, out)
	assert.False(t, processAlive(h.PID), "stop 应当终止启动时记录的 PID")
}

func TestLaunchExecFailureNamesInSandboxPath(t *testing.T) {
	m := e2eManager(t)
	payload := fakePayload(t)

	_, err := m.Launch("com.example.app", payload)
	require.Error(t, err)

	// 整条沙箱序列（命名空间、挂载、binderfs、chroot）都要成功，
	// 失败必须发生在最后的 exec 阶段并报沙箱内路径
	var ee *ExecError
	require.True(t, errors.As(err, &ee), "期望 ExecError，得到 %v", err)
	assert.Equal(t, "/system/bin/app_process64", ee.Path)
}

func TestLaunchLeavesNoPidFileOnFailure(t *testing.T) {
	m := e2eManager(t)
	payload := fakePayload(t)

	_, err := m.Launch("com.example.app", payload)
	require.Error(t, err)

	p := m.Prefix("com.example.app")
	_, _, err = p.ReadPid()
	assert.True(t, os.IsNotExist(err), "失败的启动不应留下运行记录")
}
