// Package container 是前缀生命周期的顶层编排：
// ensure/launch/stop/reset 四个操作把 pkg 下的各个机制
// （命名空间、挂载、binderfs、资源隔离）串成一次完整启动
package container

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/zqzqsb/rundroid/pkg/forkexec"
	"github.com/zqzqsb/rundroid/pkg/mount"
)

// 错误分类
// launch 的失败必须指明失败的阶段（命名空间、挂载、binder、exec），
// 绝不把子进程的失败折叠成笼统的 I/O 错误或虚假的成功
var (
	// ErrNamespaceUnsupported 表示宿主机不支持所需的命名空间
	ErrNamespaceUnsupported = errors.New("container: namespaces unsupported by host")

	// ErrPermissionDenied 表示映射写入、挂载或 binderfs 操作被拒绝
	ErrPermissionDenied = errors.New("container: permission denied")

	// ErrBinderfsUnavailable 表示内核不提供 binderfs
	// 启动前可以通过 doctor 预检出来
	ErrBinderfsUnavailable = errors.New("container: binderfs unavailable")

	// ErrAlreadyRunning 表示前缀已有存活的运行时进程
	ErrAlreadyRunning = errors.New("container: already running")
)

// MountError 表示挂载计划中某一项失败
type MountError struct {
	// Path 是失败挂载的目标（相对前缀根）
	Path  string
	Cause error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("container: mount %s: %v", e.Path, e.Cause)
}

func (e *MountError) Unwrap() error { return e.Cause }

// ExecError 表示运行时入口执行失败
// Path 是沙箱视图内的入口路径（如 /system/bin/app_process64）
type ExecError struct {
	Path  string
	Cause error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("container: exec %s: %v", e.Path, e.Cause)
}

func (e *ExecError) Unwrap() error { return e.Cause }

// StaleProcessError 记录一份指向已消失进程的运行记录
// 这不是失败：记录会被清理，启动照常进行。保留类型是为了
// 让日志和启动结果能指出发生过什么
type StaleProcessError struct {
	PID int
}

func (e *StaleProcessError) Error() string {
	return fmt.Sprintf("container: stale pid file for dead process %d", e.PID)
}

// classifyLaunchError 把子进程回传的原始错误映射到错误分类
// mounts 和 entry 提供定位信息：挂载序号到目标路径、入口的沙箱内路径
func classifyLaunchError(err error, mounts []mount.Mount, entry string) error {
	var ce forkexec.ChildError
	if !errors.As(err, &ce) {
		return err
	}

	perm := ce.Err == syscall.EPERM || ce.Err == syscall.EACCES

	switch ce.Location {
	case forkexec.LocClone:
		if ce.Err == syscall.EINVAL || ce.Err == syscall.ENOSYS {
			return fmt.Errorf("%w: clone: %v", ErrNamespaceUnsupported, ce.Err)
		}
		if perm {
			return fmt.Errorf("%w: clone: %v", ErrPermissionDenied, ce.Err)
		}

	case forkexec.LocUnshareUserRead:
		// 父进程写映射失败时子进程从这里退出
		if perm {
			return fmt.Errorf("%w: uid/gid mapping rejected: %v", ErrPermissionDenied, ce.Err)
		}
		return fmt.Errorf("container: uid/gid mapping: %w", ce)

	case forkexec.LocMountRoot, forkexec.LocMountMkdir, forkexec.LocMount:
		path := "/"
		if ce.Location != forkexec.LocMountRoot && ce.Index >= 0 && ce.Index < len(mounts) {
			path = mounts[ce.Index].Target
		}
		if perm {
			return &MountError{Path: path, Cause: fmt.Errorf("%w: %v", ErrPermissionDenied, ce.Err)}
		}
		return &MountError{Path: path, Cause: ce.Err}

	case forkexec.LocBinderOpen:
		if perm {
			return fmt.Errorf("%w: binder-control: %v", ErrPermissionDenied, ce.Err)
		}
		return fmt.Errorf("%w: %v", ErrBinderfsUnavailable, ce.Err)

	case forkexec.LocBinderIoctl:
		if ce.Err == syscall.EEXIST {
			return fmt.Errorf("container: binder device collision (index %d)", ce.Index)
		}
		if perm {
			return fmt.Errorf("%w: binder ioctl: %v", ErrPermissionDenied, ce.Err)
		}
		return fmt.Errorf("%w: ioctl: %v", ErrBinderfsUnavailable, ce.Err)

	case forkexec.LocChroot:
		if perm {
			return fmt.Errorf("%w: chroot: %v", ErrPermissionDenied, ce.Err)
		}

	case forkexec.LocExecve:
		return &ExecError{Path: entry, Cause: ce.Err}
	}

	return fmt.Errorf("container: launch stage %s: %w", ce.Location, ce)
}
