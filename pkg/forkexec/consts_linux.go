package forkexec

import (
	"golang.org/x/sys/unix"
)

// syscall 包缺少的常量
const (
	// SECCOMP_SET_MODE_FILTER 是 seccomp 的过滤器模式
	SECCOMP_SET_MODE_FILTER = 1

	// SECCOMP_FILTER_FLAG_TSYNC 把过滤器同步到所有线程
	SECCOMP_FILTER_FLAG_TSYNC = 1

	// UnshareFlags 是允许出现在 Runner.CloneFlags 中的命名空间标志全集
	// 用户和挂载命名空间是沙箱的最小集合，
	// PID/UTS/IPC/cgroup 按宿主机能力由上层追加
	UnshareFlags = unix.CLONE_NEWIPC | unix.CLONE_NEWNS |
		unix.CLONE_NEWPID | unix.CLONE_NEWUSER | unix.CLONE_NEWUTS | unix.CLONE_NEWCGROUP

	// bindRo 只读绑定挂载需要的标志位组合
	bindRo = unix.MS_BIND | unix.MS_RDONLY
)

// 子进程原始系统调用阶段使用的 C 风格字符串
var (
	// none 用于把根挂载点标记为私有
	none = []byte("none\000")
	// slash 表示根目录
	slash = []byte("/\000")
	// dot 表示当前目录，chroot 在 chdir(Root) 之后以 "." 为参数
	dot = []byte(".\000")
	// empty 空字符串
	empty = []byte("\000")

	// setGIDAllow 和 setGIDDeny 写入 /proc/<pid>/setgroups
	setGIDAllow = []byte("allow")
	setGIDDeny  = []byte("deny")

	// _AT_FDCWD 表示相对当前工作目录
	// Go 不允许负的 uintptr 常量，所以用变量
	_AT_FDCWD = unix.AT_FDCWD

	// dropCapHeader 和 dropCapData 用于清空全部能力集
	dropCapHeader = unix.CapUserHeader{
		Version: unix.LINUX_CAPABILITY_VERSION_3,
		Pid:     0,
	}
	dropCapData = unix.CapUserData{
		Effective:   0,
		Permitted:   0,
		Inheritable: 0,
	}

	// etxtbsyRetryInterval 是 execve 遇到 ETXTBSY 时的重试间隔（1ms）
	etxtbsyRetryInterval = unix.Timespec{
		Nsec: 1 * 1000 * 1000,
	}
)

// Linux 安全位（Secure Bits）
const (
	_SECURE_NOROOT = 1 << iota
	_SECURE_NOROOT_LOCKED

	_SECURE_NO_SETUID_FIXUP
	_SECURE_NO_SETUID_FIXUP_LOCKED

	_SECURE_KEEP_CAPS
	_SECURE_KEEP_CAPS_LOCKED

	_SECURE_NO_CAP_AMBIENT_RAISE
	_SECURE_NO_CAP_AMBIENT_RAISE_LOCKED
)
