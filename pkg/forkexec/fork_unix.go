package forkexec

// 导入 unsafe 是 go:linkname 的前提
import _ "unsafe"

// beforeFork 在 fork 之前锁定运行时状态：
// 停住其他线程、刷新缓冲 I/O、保存信号掩码
//
//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

// afterFork 在父进程侧恢复 fork 之前锁定的运行时状态
//
//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

// afterForkInChild 在子进程侧重置运行时状态
// 子进程中只有当前一个线程存在
//
//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()
