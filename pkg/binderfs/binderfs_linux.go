package binderfs

import (
	"errors"
	"fmt"
	"path"
	"syscall"
	"unsafe"
)

const (
	// ControlFile 是 binderfs 实例内的设备分配控制文件名
	ControlFile = "binder-control"

	// maxName 对应内核的 BINDERFS_MAX_NAME
	maxName = 255
)

// ConventionalDevices 是 Android 运行时预期的三个 Binder 设备名
// binder 服务于应用层 IPC，hwbinder 服务于 HAL，vndbinder 服务于 vendor 进程
var ConventionalDevices = []string{"binder", "hwbinder", "vndbinder"}

// Device 对应内核的 struct binderfs_device
// ioctl 成功后内核在 Major/Minor 中回填分配到的设备号
type Device struct {
	Name  [maxName + 1]byte
	Major uint32
	Minor uint32
}

// BinderCtlAdd 是 _IOWR('b', 1, struct binderfs_device) 的展开值
// 按 ABI 从结构体大小计算，而不是硬编码魔数
var BinderCtlAdd = ioWR('b', 1, unsafe.Sizeof(Device{}))

// _IOWR 的位域布局：方向(2) | 大小(14) | 类型(8) | 序号(8)
func ioWR(typ byte, nr uint8, size uintptr) uintptr {
	const (
		dirWrite  = 1
		dirRead   = 2
		sizeShift = 16
		dirShift  = 30
		typeShift = 8
	)
	return uintptr(dirRead|dirWrite)<<dirShift | size<<sizeShift | uintptr(typ)<<typeShift | uintptr(nr)
}

var (
	// ErrNameTooLong 表示设备名超出内核允许的长度
	ErrNameTooLong = errors.New("binderfs: device name too long")
	// ErrUnavailable 表示内核不支持 binderfs
	ErrUnavailable = errors.New("binderfs: not supported by kernel")
	// ErrControlInaccessible 表示控制文件无法打开
	ErrControlInaccessible = errors.New("binderfs: control file inaccessible")
	// ErrNameCollision 表示实例内已存在同名设备
	// 私有实例内不应该出现，出现说明实例被重复初始化
	ErrNameCollision = errors.New("binderfs: device name collision")
)

// NewDevice 构造一个待分配的设备请求
func NewDevice(name string) (*Device, error) {
	if len(name) > maxName {
		return nil, fmt.Errorf("%w: %s", ErrNameTooLong, name)
	}
	d := &Device{}
	copy(d.Name[:], name)
	return d, nil
}

// DeviceName 还原请求中的设备名
func (d *Device) DeviceName() string {
	for i, b := range d.Name {
		if b == 0 {
			return string(d.Name[:i])
		}
	}
	return string(d.Name[:])
}

// Link 描述一条 /dev 下的兼容符号链接
// Android 运行时在 /dev/binder 等常规路径上打开设备，
// 而实际节点位于 binderfs 实例挂载点内
type Link struct {
	Target *byte // 链接指向（相对路径，如 binderfs/binder）
	Path   *byte // 链接位置（相对前缀根，如 dev/binder）
}

// SyscallParams 是子进程在新命名空间内完成设备分配所需的全部原始参数
// 全部指针在 fork 之前准备好，子进程阶段不做任何内存分配
type SyscallParams struct {
	ControlPath *byte     // 控制文件路径（相对前缀根）
	Devices     []*Device // 待分配的设备请求
	Links       []Link    // /dev 下的兼容符号链接
	CtlAdd      uintptr   // BINDER_CTL_ADD 的 ioctl 请求码
}

// Params 把一次启动的设备分配预编译为 SyscallParams
// mountPoint 是 binderfs 实例相对前缀根的挂载点（如 dev/binderfs），
// devDir 是常规设备目录（如 dev）
func Params(mountPoint, devDir string, names []string) (*SyscallParams, error) {
	control, err := syscall.BytePtrFromString(path.Join(mountPoint, ControlFile))
	if err != nil {
		return nil, err
	}
	sp := &SyscallParams{
		ControlPath: control,
		CtlAdd:      BinderCtlAdd,
	}
	rel, err := linkRelTarget(mountPoint, devDir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		d, err := NewDevice(name)
		if err != nil {
			return nil, err
		}
		sp.Devices = append(sp.Devices, d)

		target, err := syscall.BytePtrFromString(path.Join(rel, name))
		if err != nil {
			return nil, err
		}
		linkPath, err := syscall.BytePtrFromString(path.Join(devDir, name))
		if err != nil {
			return nil, err
		}
		sp.Links = append(sp.Links, Link{Target: target, Path: linkPath})
	}
	return sp, nil
}

// linkRelTarget 计算从设备目录指向实例挂载点的相对路径
// 挂载点不在设备目录之下时退化为以前缀根为基准的路径
func linkRelTarget(mountPoint, devDir string) (string, error) {
	prefix := devDir + "/"
	if len(mountPoint) > len(prefix) && mountPoint[:len(prefix)] == prefix {
		return mountPoint[len(prefix):], nil
	}
	if mountPoint == devDir {
		return ".", nil
	}
	return "/" + mountPoint, nil
}
