// Package seccomp 提供运行时进程的 seccomp 过滤器表示。
// 过滤器由子进程在 execve 之前通过 seccomp(2) 加载，
// 用于缩小沙箱内运行时可用的系统调用面。
package seccomp

import "syscall"

// Filter 是 BPF 格式的 seccomp 过滤器
// 每个 SockFilter 是一条在内核中执行的 BPF 指令
type Filter []syscall.SockFilter

// SockFprog 把 Filter 转换为 seccomp(2) 接受的 SockFprog 格式
// Filter 指针必须指向连续内存，这里直接取切片底层数组
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}
