package mount

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	// SystemDir 是 payload 在前缀内的挂载点
	SystemDir = "system"
	// BinderfsDir 是私有 binderfs 实例在前缀内的挂载点
	BinderfsDir = "dev/binderfs"

	// bind 定义了绑定挂载的默认标志位组合：
	// - MS_BIND: 创建绑定挂载
	// - MS_NOSUID: 禁用 SUID 和 SGID 位
	// - MS_PRIVATE: 挂载点私有，不传播回宿主机命名空间
	// - MS_REC: 递归应用到所有子挂载点
	bind = unix.MS_BIND | unix.MS_NOSUID | unix.MS_PRIVATE | unix.MS_REC

	// mFlag 定义了 tmpfs 等通用挂载的默认标志位组合
	mFlag = unix.MS_NOSUID | unix.MS_NOATIME | unix.MS_NODEV
)

// 计划顺序错误
// binderfs 的设备节点要落在 dev 的 tmpfs 里，而应用可见的一切路径
// 都以 system 挂载为前提，顺序错误在执行期只会表现为费解的 ENOENT，
// 所以必须在 fork 之前拒绝
var (
	ErrNoSystemMount       = errors.New("mount plan has no system bind mount")
	ErrBinderBeforeSystem  = errors.New("binderfs mount ordered before system bind mount")
	ErrBinderWithoutTmpDev = errors.New("binderfs mount ordered before tmpfs on dev")
)

// NewAndroidBuilder 创建一份 Android 前缀的标准挂载计划：
// - payload 只读绑定到 system
// - dev、tmp 挂载可写 tmpfs
// - dev/binderfs 挂载私有 binderfs 实例
// proc 不在默认计划中，由调用方根据 PID 命名空间支持情况决定是否追加
func NewAndroidBuilder(payloadRoot string) *Builder {
	return NewBuilder().
		WithBind(payloadRoot, SystemDir, true).
		WithTmpfs("dev", "mode=755").
		WithTmpfs("tmp", "mode=1777").
		WithBinderfs(BinderfsDir)
}

// Build 把计划编译为子进程可直接执行的系统调用参数序列
func (b *Builder) Build() ([]SyscallParams, error) {
	var err error
	ret := make([]SyscallParams, 0, len(b.Mounts))
	for _, m := range b.Mounts {
		var mknod bool
		if mknod, err = isBindMountFileOrNotExists(m); err != nil {
			return nil, err
		}
		sp, err := m.ToSyscall()
		if err != nil {
			return nil, err
		}
		sp.MakeNod = mknod
		ret = append(ret, *sp)
	}
	return ret, nil
}

// Validate 检查计划的顺序约束：
// 1. 必须存在 system 绑定挂载
// 2. binderfs 必须排在 system 之后
// 3. binderfs 必须排在 dev 的 tmpfs 之后
func (b *Builder) Validate() error {
	systemAt, devAt, binderAt := -1, -1, -1
	for i, m := range b.Mounts {
		switch {
		case m.IsBindMount() && m.Target == SystemDir && systemAt < 0:
			systemAt = i
		case m.IsTmpFs() && m.Target == "dev" && devAt < 0:
			devAt = i
		case m.IsBinderfs() && binderAt < 0:
			binderAt = i
		}
	}
	if systemAt < 0 {
		return ErrNoSystemMount
	}
	if binderAt >= 0 && binderAt < systemAt {
		return fmt.Errorf("%w: binderfs at %d, system at %d", ErrBinderBeforeSystem, binderAt, systemAt)
	}
	if binderAt >= 0 && (devAt < 0 || binderAt < devAt) {
		return ErrBinderWithoutTmpDev
	}
	return nil
}

// FilterNotExist 从计划中移除源路径不存在的绑定挂载
// 用于 payload 中可选的目录，比如只有 64 位库的镜像没有 system/lib
func (b *Builder) FilterNotExist() *Builder {
	rt := b.Mounts[:0]
	for _, m := range b.Mounts {
		if m.IsBindMount() {
			if _, err := os.Stat(m.Source); os.IsNotExist(err) {
				continue
			}
		}
		rt = append(rt, m)
	}
	b.Mounts = rt
	return b
}

// isBindMountFileOrNotExists 检查绑定挂载源的状态
// 返回 true 表示源是文件，目标需要 mknod 而不是 mkdir
func isBindMountFileOrNotExists(m Mount) (bool, error) {
	if m.IsBindMount() {
		if fi, err := os.Stat(m.Source); os.IsNotExist(err) {
			return false, err
		} else if !fi.IsDir() {
			return true, err
		}
	}
	return false, nil
}

// WithMounts 追加多个挂载项
func (b *Builder) WithMounts(m []Mount) *Builder {
	b.Mounts = append(b.Mounts, m...)
	return b
}

// WithMount 追加单个挂载项
func (b *Builder) WithMount(m Mount) *Builder {
	b.Mounts = append(b.Mounts, m)
	return b
}

// WithBind 追加一个绑定挂载
func (b *Builder) WithBind(source, target string, readonly bool) *Builder {
	var flags uintptr = bind
	if readonly {
		flags |= unix.MS_RDONLY
	}
	b.Mounts = append(b.Mounts, Mount{
		Source: source,
		Target: target,
		Flags:  flags,
	})
	return b
}

// WithTmpfs 追加一个 tmpfs 挂载
func (b *Builder) WithTmpfs(target, data string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "tmpfs",
		Target: target,
		FsType: "tmpfs",
		Flags:  mFlag,
		Data:   data,
	})
	return b
}

// WithBinderfs 追加一个私有 binderfs 实例挂载
// 设备节点的分配由 pkg/binderfs 在挂载完成后执行
func (b *Builder) WithBinderfs(target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "binder",
		Target: target,
		FsType: "binder",
		Flags:  unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC,
	})
	return b
}

// WithProc 追加一个只读 proc 挂载
// 调用方必须保证已启用 PID 命名空间，否则挂载出来的是宿主机进程视图
func (b *Builder) WithProc() *Builder {
	return b.WithProcRW(false)
}

// WithProcRW 追加 proc 挂载，可指定读写
func (b *Builder) WithProcRW(canWrite bool) *Builder {
	var flags uintptr = unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC
	if !canWrite {
		flags |= unix.MS_RDONLY
	}
	b.Mounts = append(b.Mounts, Mount{
		Source: "proc",
		Target: "proc",
		FsType: "proc",
		Flags:  flags,
	})
	return b
}

// WithSysfs 追加一个只读 sysfs 挂载
func (b *Builder) WithSysfs() *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "sysfs",
		Target: "sys",
		FsType: "sysfs",
		Flags:  unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC | unix.MS_RDONLY,
	})
	return b
}

// String 返回计划中所有挂载项的字符串表示，用于启动日志
func (b Builder) String() string {
	var sb strings.Builder
	sb.WriteString("Mounts: ")
	for i, m := range b.Mounts {
		sb.WriteString(m.String())
		if i != len(b.Mounts)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
