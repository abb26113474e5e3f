package forkexec

import (
	"syscall"

	"github.com/zqzqsb/rundroid/pkg/binderfs"
	"github.com/zqzqsb/rundroid/pkg/mount"
	"github.com/zqzqsb/rundroid/pkg/rlimit"
)

// Runner 描述一次沙箱子进程的完整配置
// 配置在启动前构建完毕，Start 之后不再修改
type Runner struct {
	// Args 和 Env 用于最终的 execve
	// Args[0] 是沙箱视图内的运行时入口路径（如 /system/bin/app_process64）
	Args []string
	Env  []string

	// RLimits 是 execve 前通过 prlimit64 应用的资源限制
	RLimits []rlimit.RLimit

	// Files 是子进程的文件描述符映射，下标即目标 fd
	// 通常 0,1,2 分别指向 /dev/null 和日志管道的写入端
	Files []uintptr

	// WorkDir 是根目录切换之后的工作目录
	WorkDir string

	// Seccomp 是 execve 前加载的系统调用过滤器，nil 表示不过滤
	Seccomp *syscall.SockFprog

	// CloneFlags 指定要创建的命名空间集合
	// 用户和挂载命名空间是沙箱成立的前提，其余按宿主机能力追加
	CloneFlags uintptr

	// Mounts 是在新挂载命名空间内按序执行的挂载计划
	// 目标路径相对于 Root，由 pkg/mount 预编译
	Mounts []mount.SyscallParams

	// Binderfs 是挂载计划完成后执行的 Binder 设备分配参数
	// nil 表示本次启动不提供私有 Binder 实例
	Binderfs *binderfs.SyscallParams

	// Root 是前缀根目录（绝对路径）
	// 子进程 chdir(Root) 后执行挂载计划，再 chroot 进这个视图
	// 为空时不做根目录切换（仅用于测试）
	Root string

	// HostName 和 DomainName 在新 UTS 命名空间内设置
	HostName, DomainName string

	// UIDMappings 和 GIDMappings 是用户命名空间的 ID 映射
	// 为空时使用默认映射：命名空间内的 root 映射到宿主机当前用户
	UIDMappings []syscall.SysProcIDMap
	GIDMappings []syscall.SysProcIDMap

	// GIDMappingsEnableSetgroups 控制子进程能否调用 setgroups
	// 写入 gid_map 之前必须先写 setgroups 文件，默认拒绝
	GIDMappingsEnableSetgroups bool

	// SyncFunc 在子进程 execve 之前由父进程调用，参数为子进程 PID
	// 用于把子进程放入 cgroup 等需要父进程权限的操作
	// 返回错误时父进程通知子进程放弃执行
	SyncFunc func(int) error

	// NoNewPrivs 通过 prctl(PR_SET_NO_NEW_PRIVS) 禁止特权提升
	// 提供 seccomp 过滤器时自动启用
	NoNewPrivs bool

	// DropCaps 在 execve 前清空全部能力集
	DropCaps bool

	// UnshareCgroupAfterSync 在与父进程同步之后再隔离 cgroup 命名空间
	// （SyncFunc 可能要先把子进程加入某个 cgroup）
	UnshareCgroupAfterSync bool
}
