// Package rlimit 提供沙箱内运行时进程的资源限制数据结构
// 限制在 execve 之前由子进程通过 prlimit64 应用到自身
package rlimit

import (
	"fmt"
	"strings"
	"syscall"
)

// RLimits 描述施加到运行时进程的资源限制
// 零值字段表示不限制对应资源
type RLimits struct {
	CPU          uint64 // CPU 时间限制（秒）
	CPUHard      uint64 // 硬性 CPU 时间限制（秒）
	FileSize     uint64 // 单个文件大小限制（字节）
	Stack        uint64 // 栈大小限制（字节）
	AddressSpace uint64 // 地址空间限制（字节）
	OpenFile     uint64 // 打开文件数量限制
	DisableCore  bool   // 是否禁用 core dump
}

// RLimit 是单条 Linux 资源限制
type RLimit struct {
	// Res 是资源类型（例如 syscall.RLIMIT_NOFILE）
	Res int
	// Rlim 是应用到该资源的限制
	Rlim syscall.Rlimit
}

// DefaultRuntime 返回适合 Android 运行时的限制集合：
// 运行时会打开大量 dex/oat 映射，文件描述符上限要足够高；
// core dump 会把整个 ART 堆写到前缀目录里，默认禁用
func DefaultRuntime() RLimits {
	return RLimits{
		OpenFile:    32768,
		DisableCore: true,
	}
}

func getRlimit(cur, max uint64) syscall.Rlimit {
	return syscall.Rlimit{Cur: cur, Max: max}
}

// PrepareRLimit 把限制集合展开成子进程可以逐条应用的数组
// 只包含显式设置过的资源
func (r *RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit

	if r.CPU > 0 {
		cpuHard := r.CPUHard
		if cpuHard < r.CPU {
			cpuHard = r.CPU
		}
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_CPU,
			Rlim: getRlimit(r.CPU, cpuHard),
		})
	}

	if r.FileSize > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_FSIZE,
			Rlim: getRlimit(r.FileSize, r.FileSize),
		})
	}

	if r.Stack > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_STACK,
			Rlim: getRlimit(r.Stack, r.Stack),
		})
	}

	if r.AddressSpace > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_AS,
			Rlim: getRlimit(r.AddressSpace, r.AddressSpace),
		})
	}

	if r.OpenFile > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_NOFILE,
			Rlim: getRlimit(r.OpenFile, r.OpenFile),
		})
	}

	if r.DisableCore {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_CORE,
			Rlim: getRlimit(0, 0),
		})
	}

	return ret
}

// String 返回 RLimit 的字符串表示
func (r RLimit) String() string {
	var t string
	switch r.Res {
	case syscall.RLIMIT_CPU:
		return fmt.Sprintf("CPU[%d s:%d s]", r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_NOFILE:
		return fmt.Sprintf("OpenFile[%d:%d]", r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_FSIZE:
		t = "File"
	case syscall.RLIMIT_STACK:
		t = "Stack"
	case syscall.RLIMIT_AS:
		t = "AddressSpace"
	case syscall.RLIMIT_CORE:
		t = "Core"
	default:
		t = fmt.Sprintf("Resource(%d)", r.Res)
	}
	return fmt.Sprintf("%s[%d]", t, r.Rlim.Cur)
}

// String 返回 RLimits 的字符串表示
func (r *RLimits) String() string {
	var s []string
	if r.CPU > 0 {
		s = append(s, fmt.Sprintf("CPU=%d", r.CPU))
	}
	if r.CPUHard > 0 {
		s = append(s, fmt.Sprintf("CPUHard=%d", r.CPUHard))
	}
	if r.FileSize > 0 {
		s = append(s, fmt.Sprintf("FileSize=%d", r.FileSize))
	}
	if r.Stack > 0 {
		s = append(s, fmt.Sprintf("Stack=%d", r.Stack))
	}
	if r.AddressSpace > 0 {
		s = append(s, fmt.Sprintf("AddressSpace=%d", r.AddressSpace))
	}
	if r.OpenFile > 0 {
		s = append(s, fmt.Sprintf("OpenFile=%d", r.OpenFile))
	}
	if r.DisableCore {
		s = append(s, "DisableCore=true")
	}
	return fmt.Sprintf("RLimits{%s}", strings.Join(s, ", "))
}
