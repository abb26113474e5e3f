package mount

import (
	"syscall"
)

// Mount 定义了挂载计划中的一项操作
// Target 使用相对于前缀根目录的相对路径，这样同一份计划可以在
// chdir(prefixRoot) 之后的子进程中直接执行
type Mount struct {
	Source string  // 挂载源（宿主机路径、设备名或特殊文件系统名）
	Target string  // 挂载目标（相对于前缀根目录）
	FsType string  // 文件系统类型（如 tmpfs、proc、binder）
	Data   string  // 挂载选项（如 size=64m,mode=755）
	Flags  uintptr // 挂载标志（如 MS_RDONLY、MS_BIND）
}

// SyscallParams 是执行 mount 系统调用所需的原始参数
// 所有字符串都在 fork 之前转换为 C 风格字节指针，
// 子进程在不能分配内存的阶段直接使用这些指针
type SyscallParams struct {
	Source, Target, FsType, Data *byte   // C 风格字符串指针
	Flags                        uintptr // 挂载标志
	Prefixes                     []*byte // 目标路径的逐级父目录（用于创建挂载点）
	MakeNod                      bool    // 目标是文件时需要先 mknod
}

// ToSyscall 把 Mount 编译为系统调用参数
// 除了转换字符串本身，还会展开目标路径的所有父目录，
// 保证子进程可以按序 mkdir 出完整的挂载点路径
func (m *Mount) ToSyscall() (*SyscallParams, error) {
	var data *byte
	source, err := syscall.BytePtrFromString(m.Source)
	if err != nil {
		return nil, err
	}
	target, err := syscall.BytePtrFromString(m.Target)
	if err != nil {
		return nil, err
	}
	fsType, err := syscall.BytePtrFromString(m.FsType)
	if err != nil {
		return nil, err
	}
	if m.Data != "" {
		data, err = syscall.BytePtrFromString(m.Data)
		if err != nil {
			return nil, err
		}
	}
	// 展开目标路径的父目录序列
	paths, err := arrayPtrFromStrings(pathPrefix(m.Target))
	if err != nil {
		return nil, err
	}
	return &SyscallParams{
		Source:   source,
		Target:   target,
		FsType:   fsType,
		Flags:    m.Flags,
		Data:     data,
		Prefixes: paths,
	}, nil
}

// pathPrefix 返回路径的所有前缀
// 例如 "dev/binderfs" 返回 ["dev", "dev/binderfs"]
func pathPrefix(path string) []string {
	ret := make([]string, 0)
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			ret = append(ret, path[:i])
		}
	}
	ret = append(ret, path)
	return ret
}

// arrayPtrFromStrings 把字符串数组转换为 C 风格字符串数组
func arrayPtrFromStrings(str []string) ([]*byte, error) {
	bytes := make([]*byte, 0, len(str))
	for _, s := range str {
		b, err := syscall.BytePtrFromString(s)
		if err != nil {
			return nil, err
		}
		bytes = append(bytes, b)
	}
	return bytes, nil
}
