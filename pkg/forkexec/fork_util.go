package forkexec

import (
	"syscall"
)

// prepareExec 把 execve 的参数预转换为 C 风格格式
// Args[0] 是沙箱视图内的入口路径，转换必须发生在 fork 之前
func prepareExec(Args, Env []string) (*byte, []*byte, []*byte, error) {
	argv0, err := syscall.BytePtrFromString(Args[0])
	if err != nil {
		return nil, nil, nil, err
	}
	argv, err := syscall.SlicePtrFromStrings(Args)
	if err != nil {
		return nil, nil, nil, err
	}
	env, err := syscall.SlicePtrFromStrings(Env)
	if err != nil {
		return nil, nil, nil, err
	}
	return argv0, argv, env, nil
}

// prepareFds 预处理文件描述符映射
// 返回转换后的数组和第一个保证不冲突的描述符编号
func prepareFds(files []uintptr) ([]int, int) {
	fd := make([]int, len(files))
	nextfd := len(files)
	for i, ufd := range files {
		if nextfd < int(ufd) {
			nextfd = int(ufd)
		}
		fd[i] = int(ufd)
	}
	nextfd++
	return fd, nextfd
}

// syscallStringFromString 转换可选的字符串参数
// 空字符串返回 nil，表示子进程跳过对应操作
func syscallStringFromString(str string) (*byte, error) {
	if str != "" {
		return syscall.BytePtrFromString(str)
	}
	return nil, nil
}
