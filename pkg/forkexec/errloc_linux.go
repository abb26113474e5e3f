package forkexec

import (
	"fmt"
	"syscall"
)

// ErrorLocation 标记子进程启动序列中失败的具体位置
// 启动流程靠它区分"命名空间不支持"、"挂载失败"、"Binder 分配失败"
// 和"执行失败"，绝不把失败折叠成笼统的 I/O 错误
type ErrorLocation int

// ChildError 是子进程通过同步管道回传的错误
type ChildError struct {
	Err      syscall.Errno // 系统调用错误码
	Location ErrorLocation // 失败位置
	Index    int           // 操作序号（挂载、设备分配等批量操作适用）
}

// 失败位置按子进程的执行顺序排列
const (
	LocClone           ErrorLocation = iota + 1 // clone 创建进程失败
	LocCloseWrite                               // 关闭父端管道失败
	LocUnshareUserRead                          // 等待 uid/gid 映射失败
	LocGetPid                                   // 获取进程 ID 失败
	LocKeepCapability                           // 保持能力失败
	LocDup3                                     // 文件描述符重定向失败
	LocFcntl                                    // 文件描述符标志设置失败
	LocSetSid                                   // 创建会话失败
	LocMountRoot                                // 根挂载点标记私有失败
	LocChdirRoot                                // 进入前缀根目录失败
	LocMountMkdir                               // 创建挂载点失败
	LocMount                                    // 挂载计划中的挂载失败
	LocBinderOpen                               // 打开 binder-control 失败
	LocBinderIoctl                              // Binder 设备分配失败
	LocBinderLink                               // Binder 设备符号链接失败
	LocChroot                                   // 根目录切换失败
	LocChdir                                    // 进入工作目录失败
	LocSetRlimit                                // 设置资源限制失败
	LocSetNoNewPrivs                            // 禁止特权提升失败
	LocDropCapability                           // 清空能力集失败
	LocSetCap                                   // 设置能力失败
	LocSeccomp                                  // 加载 seccomp 过滤器失败
	LocSyncWrite                                // 与父进程同步写失败
	LocSyncRead                                 // 与父进程同步读失败
	LocExecve                                   // execve 失败
)

var locToString = []string{
	"unknown",
	"clone",
	"close_write",
	"unshare_user_read",
	"getpid",
	"keep_capability",
	"dup3",
	"fcntl",
	"setsid",
	"mount(root)",
	"chdir(root)",
	"mount(mkdir)",
	"mount",
	"binder(open)",
	"binder(ioctl)",
	"binder(symlink)",
	"chroot",
	"chdir",
	"setrlimit",
	"set_no_new_privs",
	"drop_capability",
	"set_cap",
	"seccomp",
	"sync_write",
	"sync_read",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

// Error 实现 error 接口
// 带序号的批量操作（挂载、设备分配）会附带序号，
// 例如 "mount(2): no such file or directory"
func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}
