// Package cgroup 提供沙箱实例的 cgroup v2 资源隔离
// 每个前缀启动时可以把运行时进程放进独立的 cgroup，
// 限制内存、CPU 带宽和进程数量，并读取资源用量
package cgroup

import "errors"

const (
	// basePath 是 cgroup v2 统一层级的挂载点
	basePath = "/sys/fs/cgroup"

	// cgroupProcs 记录 cgroup 中的进程 ID
	cgroupProcs = "cgroup.procs"

	// cgroupSubtreeControl 控制子树中可用的控制器
	// 写入 "+controller" 或 "-controller" 启用或禁用
	cgroupSubtreeControl = "cgroup.subtree_control"

	// cgroupControllers 列出当前 cgroup 可启用的控制器
	cgroupControllers = "cgroup.controllers"

	filePerm = 0644
	dirPerm  = 0755

	// CPU 控制器，用于 CPU 带宽限制
	CPU = "cpu"

	// CPUSet 控制器，用于 CPU 核心绑定
	CPUSet = "cpuset"

	// Memory 控制器，用于内存限制和统计
	Memory = "memory"

	// Pids 控制器，用于进程数量限制
	Pids = "pids"
)

// ErrNotInitialized 表示所需的控制器未启用
var ErrNotInitialized = errors.New("cgroup: controller not initialized")

// ErrV2Unavailable 表示系统没有以 v2 模式挂载 cgroup
// 资源隔离是可选能力，调用方应当降级而不是失败
var ErrV2Unavailable = errors.New("cgroup: v2 unified hierarchy unavailable")
