package mount

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// 挂载失败的分类
// 启动流程用分类决定报错文案：源缺失说明 payload 不完整，
// 权限问题说明命名空间/映射没有生效，类型不支持说明内核缺少配置
var (
	ErrSourceMissing = errors.New("mount source missing")
	ErrPermission    = errors.New("mount permission denied")
	ErrFsUnsupported = errors.New("filesystem type unsupported")
)

// Mount 在当前挂载命名空间内执行这一项挂载
// 只读绑定挂载需要二次 remount，因为首次 mount 时内核忽略 MS_RDONLY
func (m *Mount) Mount() error {
	if err := ensureMountTargetExists(m.Source, m.Target); err != nil {
		return fmt.Errorf("mkdir %s: %w", m.Target, err)
	}
	if err := syscall.Mount(m.Source, m.Target, m.FsType, m.Flags, m.Data); err != nil {
		return classify(m, err)
	}
	const bindRo = syscall.MS_BIND | syscall.MS_RDONLY
	if m.Flags&bindRo == bindRo {
		if err := syscall.Mount("", m.Target, m.FsType, m.Flags|syscall.MS_REMOUNT, m.Data); err != nil {
			return fmt.Errorf("remount %s: %w", m.Target, err)
		}
	}
	return nil
}

// classify 把 mount 系统调用错误映射为可诊断的分类错误
func classify(m *Mount, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return fmt.Errorf("mount %s: %w: %s", m.Target, ErrSourceMissing, m.Source)
		case syscall.EPERM, syscall.EACCES:
			return fmt.Errorf("mount %s: %w", m.Target, ErrPermission)
		case syscall.ENODEV, syscall.EINVAL:
			if m.FsType != "" && !m.IsBindMount() {
				return fmt.Errorf("mount %s: %w: %s", m.Target, ErrFsUnsupported, m.FsType)
			}
		}
	}
	return fmt.Errorf("mount %s: %w", m.Target, err)
}

// IsBindMount 判断是否为绑定挂载
func (m Mount) IsBindMount() bool {
	return m.Flags&syscall.MS_BIND == syscall.MS_BIND
}

// IsReadOnly 判断是否为只读挂载
func (m Mount) IsReadOnly() bool {
	return m.Flags&syscall.MS_RDONLY == syscall.MS_RDONLY
}

// IsTmpFs 判断是否为 tmpfs
func (m Mount) IsTmpFs() bool {
	return m.FsType == "tmpfs"
}

// IsBinderfs 判断是否为 binderfs 实例挂载
func (m Mount) IsBinderfs() bool {
	return m.FsType == "binder"
}

// ensureMountTargetExists 确保挂载目标存在
// 源是文件时创建目标文件（用于文件绑定挂载），否则递归创建目录
func ensureMountTargetExists(source, target string) error {
	isFile := false
	if fi, err := os.Stat(source); err == nil {
		isFile = !fi.IsDir()
	}
	dir := target
	if isFile {
		dir = filepath.Dir(target)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if isFile {
		if err := syscall.Mknod(target, 0755, 0); err != nil {
			// 并发创建时目标可能已经存在
			f, err1 := os.Lstat(target)
			if err1 == nil && f.Mode().IsRegular() {
				return nil
			}
			return err
		}
	}
	return nil
}

// String 返回这一项挂载的字符串表示，用于日志输出
func (m Mount) String() string {
	flag := "rw"
	if m.IsReadOnly() {
		flag = "ro"
	}
	switch {
	case m.IsBindMount():
		return fmt.Sprintf("bind[%s:%s:%s]", m.Source, m.Target, flag)

	case m.IsTmpFs():
		return fmt.Sprintf("tmpfs[%s]", m.Target)

	case m.IsBinderfs():
		return fmt.Sprintf("binderfs[%s]", m.Target)

	case m.FsType == "proc":
		return fmt.Sprintf("proc[%s]", flag)

	default:
		return fmt.Sprintf("mount[%s,%s:%s:%x,%s]", m.FsType, m.Source, m.Target, m.Flags, m.Data)
	}
}
