package container

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/rundroid/config"
	"github.com/zqzqsb/rundroid/doctor"
	"github.com/zqzqsb/rundroid/pkg/forkexec"
	"github.com/zqzqsb/rundroid/pkg/mount"
	"github.com/zqzqsb/rundroid/zygote"
)

func testManager(t *testing.T, caps doctor.Capabilities) *Manager {
	t.Helper()
	cfg := &config.Config{
		DataDir:         t.TempDir(),
		LogLevel:        "info",
		StopTimeout:     500 * time.Millisecond,
		Seccomp:         false,
		Cgroup:          false,
		RuntimeLogLimit: 1 << 20,
	}
	return NewManager(cfg, caps, nil)
}

func TestEnsureIdempotent(t *testing.T) {
	m := testManager(t, doctor.Capabilities{})

	p1, err := m.Ensure("com.example.app")
	require.NoError(t, err)
	p2, err := m.Ensure("com.example.app")
	require.NoError(t, err)
	assert.Equal(t, p1.Root, p2.Root)
}

func TestLaunchRejectsMissingUserNamespaces(t *testing.T) {
	m := testManager(t, doctor.Capabilities{UserNamespaces: false, Binderfs: true})

	_, err := m.Launch("com.example.app", t.TempDir())
	assert.ErrorIs(t, err, ErrNamespaceUnsupported)
}

func TestLaunchRejectsMissingBinderfs(t *testing.T) {
	m := testManager(t, doctor.Capabilities{UserNamespaces: true, Binderfs: false})

	_, err := m.Launch("com.example.app", t.TempDir())
	assert.ErrorIs(t, err, ErrBinderfsUnavailable)
}

func TestLaunchRejectsIncompletePayload(t *testing.T) {
	m := testManager(t, doctor.Capabilities{UserNamespaces: true, Binderfs: true})

	_, err := m.Launch("com.example.app", t.TempDir())
	var pe *zygote.PayloadError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "/system/bin/app_process64", pe.MissingPath)
}

func TestLaunchRejectsWhileRunning(t *testing.T) {
	m := testManager(t, doctor.Capabilities{UserNamespaces: true, Binderfs: true})
	p, err := m.Ensure("com.example.app")
	require.NoError(t, err)

	// 指向当前进程的记录模拟"正在运行"
	require.NoError(t, p.WritePid(os.Getpid(), time.Now()))

	_, err = m.Launch("com.example.app", t.TempDir())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStopWithoutPidFile(t *testing.T) {
	m := testManager(t, doctor.Capabilities{})
	_, err := m.Ensure("com.example.app")
	require.NoError(t, err)

	out, err := m.Stop("com.example.app")
	require.NoError(t, err, "stop 未运行的应用不应报错")
	assert.Equal(t, WasNotRunning, out)
}

func TestStopStalePidFile(t *testing.T) {
	m := testManager(t, doctor.Capabilities{})
	p, err := m.Ensure("com.example.app")
	require.NoError(t, err)

	require.NoError(t, p.WritePid(1<<22-1, time.Now()))

	out, err := m.Stop("com.example.app")
	require.NoError(t, err)
	assert.Equal(t, WasNotRunning, out)

	_, _, err = p.ReadPid()
	assert.True(t, os.IsNotExist(err), "陈旧记录应被清理")
}

func TestStopTerminatesLiveProcess(t *testing.T) {
	m := testManager(t, doctor.Capabilities{})
	p, err := m.Ensure("com.example.app")
	require.NoError(t, err)

	// 用一个暂停的真实子进程验证 SIGTERM → 等待 → 清理
	pid, err := syscall.ForkExec("/bin/sleep", []string{"sleep", "30"}, &syscall.ProcAttr{})
	require.NoError(t, err)
	require.NoError(t, p.WritePid(pid, time.Now()))

	out, err := m.Stop("com.example.app")
	require.NoError(t, err)
	assert.Equal(t, WasRunning, out)
	assert.False(t, processAlive(pid), "进程应已被终止")
}

func TestResetRefusesWhileRunning(t *testing.T) {
	m := testManager(t, doctor.Capabilities{})
	p, err := m.Ensure("com.example.app")
	require.NoError(t, err)
	require.NoError(t, p.WritePid(os.Getpid(), time.Now()))

	err = m.Reset("com.example.app")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestResetTwiceIsSafe(t *testing.T) {
	m := testManager(t, doctor.Capabilities{})
	_, err := m.Ensure("com.example.app")
	require.NoError(t, err)

	require.NoError(t, m.Reset("com.example.app"))
	require.NoError(t, m.Reset("com.example.app"))
}

func TestRunnerSecurityPosture(t *testing.T) {
	m := testManager(t, doctor.Capabilities{
		UserNamespaces: true, Binderfs: true,
		PIDNamespaces: true, UTSNamespaces: true, IPCNamespaces: true,
	})
	spec := &zygote.Spec{Package: "com.example.app"}

	r := m.newRunner("/prefix", spec, nil, nil, nil, []uintptr{0, 1, 2}, nil, true)

	// 安全基线不依赖宿主机能力
	assert.True(t, r.NoNewPrivs, "必须禁止特权提升")
	assert.True(t, r.DropCaps, "execve 前必须清空能力集")
	assert.True(t, r.UnshareCgroupAfterSync)
	assert.Equal(t, "android", r.HostName)
	for _, flag := range []uintptr{
		unix.CLONE_NEWUSER, unix.CLONE_NEWNS,
		unix.CLONE_NEWPID, unix.CLONE_NEWUTS, unix.CLONE_NEWIPC,
	} {
		assert.NotZero(t, r.CloneFlags&flag, "clone 标志缺失: %#x", flag)
	}
	assert.Contains(t, r.Env, "RUNDROID_SERVICE_SOCKET=/data/.rundroid/servicemanager")
}

func TestRunnerDegradedCapabilities(t *testing.T) {
	m := testManager(t, doctor.Capabilities{UserNamespaces: true, Binderfs: true})

	r := m.newRunner("/prefix", &zygote.Spec{Package: "com.example.app"},
		nil, nil, nil, []uintptr{0, 1, 2}, nil, false)

	assert.Zero(t, r.CloneFlags&unix.CLONE_NEWPID)
	assert.Zero(t, r.CloneFlags&unix.CLONE_NEWUTS)
	assert.Zero(t, r.CloneFlags&unix.CLONE_NEWIPC)
	assert.Empty(t, r.HostName, "没有 UTS 命名空间不应设置主机名")
	// 降级不放松安全基线
	assert.True(t, r.NoNewPrivs)
	assert.True(t, r.DropCaps)
}

func TestStopWithCgroupEnabledButNoNode(t *testing.T) {
	m := testManager(t, doctor.Capabilities{})
	m.cfg.Cgroup = true
	p, err := m.Ensure("com.example.app")
	require.NoError(t, err)

	// cgroup 节点从未创建（比如启动时 v2 不可用降级），
	// stop 的残留清理必须静默跳过
	pid, err := syscall.ForkExec("/bin/sleep", []string{"sleep", "30"}, &syscall.ProcAttr{})
	require.NoError(t, err)
	require.NoError(t, p.WritePid(pid, time.Now()))

	out, err := m.Stop("com.example.app")
	require.NoError(t, err)
	assert.Equal(t, WasRunning, out)
}

func TestStoppedOutcomeString(t *testing.T) {
	assert.Equal(t, "was running", WasRunning.String())
	assert.Equal(t, "was not running", WasNotRunning.String())
}

func TestClassifyNamespaceUnsupported(t *testing.T) {
	err := classifyLaunchError(
		forkexec.ChildError{Err: syscall.EINVAL, Location: forkexec.LocClone},
		nil, "/system/bin/app_process64")
	assert.ErrorIs(t, err, ErrNamespaceUnsupported)
}

func TestClassifyMappingRejected(t *testing.T) {
	err := classifyLaunchError(
		forkexec.ChildError{Err: syscall.EPERM, Location: forkexec.LocUnshareUserRead},
		nil, "/system/bin/app_process64")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestClassifyMountError(t *testing.T) {
	mounts := []mount.Mount{
		{Source: "/payload", Target: "system"},
		{Source: "tmpfs", Target: "dev", FsType: "tmpfs"},
	}
	err := classifyLaunchError(
		forkexec.ChildError{Err: syscall.ENOENT, Location: forkexec.LocMount, Index: 1},
		mounts, "/system/bin/app_process64")

	var me *MountError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "dev", me.Path)
	assert.ErrorIs(t, me.Cause, syscall.ENOENT)
}

func TestClassifyBinderfs(t *testing.T) {
	err := classifyLaunchError(
		forkexec.ChildError{Err: syscall.ENODEV, Location: forkexec.LocBinderOpen},
		nil, "/system/bin/app_process64")
	assert.ErrorIs(t, err, ErrBinderfsUnavailable)

	err = classifyLaunchError(
		forkexec.ChildError{Err: syscall.EACCES, Location: forkexec.LocBinderOpen},
		nil, "/system/bin/app_process64")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestClassifyExecNamesInSandboxPath(t *testing.T) {
	err := classifyLaunchError(
		forkexec.ChildError{Err: syscall.ENOENT, Location: forkexec.LocExecve},
		nil, "/system/bin/app_process64")

	var ee *ExecError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "/system/bin/app_process64", ee.Path, "exec 失败必须报沙箱内路径")
}

func TestClassifyPassthrough(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, plain, classifyLaunchError(plain, nil, ""))
}
