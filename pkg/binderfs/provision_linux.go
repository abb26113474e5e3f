package binderfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Instance 表示一个已完成设备分配的 binderfs 实例
type Instance struct {
	MountPoint string   // 实例挂载点（绝对路径）
	Devices    []string // 已分配的设备名
}

// DevicePath 返回设备节点在实例内的路径
func (in *Instance) DevicePath(name string) string {
	return filepath.Join(in.MountPoint, name)
}

// Provision 在当前进程的命名空间内挂载 binderfs 并分配设备
// 与子进程的原始系统调用路径等价，供能力探测和测试使用；
// 正式启动走 pkg/forkexec 的预编译参数路径
func Provision(mountPoint string, names []string) (*Instance, error) {
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return nil, err
	}
	err := unix.Mount("binder", mountPoint, "binder",
		unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, "")
	if err != nil {
		if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EINVAL) {
			return nil, fmt.Errorf("mount %s: %w", mountPoint, ErrUnavailable)
		}
		return nil, fmt.Errorf("mount %s: %w", mountPoint, err)
	}

	in := &Instance{MountPoint: mountPoint}
	if err := in.allocate(names); err != nil {
		unix.Unmount(mountPoint, unix.MNT_DETACH)
		return nil, err
	}
	return in, nil
}

// allocate 通过控制文件逐个分配设备节点
func (in *Instance) allocate(names []string) error {
	control, err := os.OpenFile(filepath.Join(in.MountPoint, ControlFile), os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrControlInaccessible, err)
	}
	defer control.Close()

	for _, name := range names {
		d, err := NewDevice(name)
		if err != nil {
			return err
		}
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, control.Fd(), BinderCtlAdd, uintptr(unsafe.Pointer(d)))
		switch errno {
		case 0:
			in.Devices = append(in.Devices, name)
		case syscall.EEXIST:
			return fmt.Errorf("%w: %s", ErrNameCollision, name)
		case syscall.EPERM, syscall.EACCES:
			return fmt.Errorf("allocate %s: %w", name, os.ErrPermission)
		default:
			return fmt.Errorf("allocate %s: %w", name, errno)
		}
	}
	return nil
}

// Unmount 卸载实例
// 正式启动不需要调用：实例随子进程的挂载命名空间一起消亡
func (in *Instance) Unmount() error {
	return unix.Unmount(in.MountPoint, unix.MNT_DETACH)
}
