package libseccomp

import (
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"

	"github.com/zqzqsb/rundroid/pkg/seccomp"
)

// Builder 用于构建运行时进程的 seccomp 过滤器
//
// Android 运行时依赖的系统调用面非常宽（ART、Bionic、
// ashmem/binder ioctl 等），白名单模式不可行，所以这里
// 采用拒绝名单：Denied 中的调用返回 EPERM，其余放行
type Builder struct {
	Denied  []string // 拒绝的系统调用，返回 EPERM
	Default Action   // 不在名单中时的默认动作
}

// actErrno 对拒绝的调用统一返回 EPERM，而不是杀死进程：
// Bionic 的不少探测路径会主动尝试特权调用并处理失败
var actErrno = libseccomp.ActionErrno | libseccomp.Action(syscall.EPERM)

// AndroidDenylist 是沙箱内运行时默认拒绝的系统调用：
// 内核模块、挂载操作、时钟和主机状态的修改都不允许从
// 沙箱内部发起——这些能力全部属于宿主机侧的编排进程
var AndroidDenylist = []string{
	"acct",
	"delete_module",
	"finit_module",
	"init_module",
	"kexec_file_load",
	"kexec_load",
	"mount",
	"move_mount",
	"open_by_handle_at",
	"pivot_root",
	"reboot",
	"setdomainname",
	"sethostname",
	"settimeofday",
	"swapoff",
	"swapon",
	"umount2",
	"vhangup",
}

// AndroidPolicy 返回默认的运行时过滤策略
func AndroidPolicy() Builder {
	return Builder{
		Denied:  AndroidDenylist,
		Default: ActionAllow,
	}
}

// Build 构建过滤器
//
// 过程：
// 1. 把配置转换为 libseccomp 策略
// 2. 编译为 BPF 程序
// 3. 转换为 seccomp(2) 可加载的格式
func (b *Builder) Build() (seccomp.Filter, error) {
	policy := libseccomp.Policy{
		DefaultAction: ToSeccompAction(b.Default),
		Syscalls: []libseccomp.SyscallGroup{
			{
				Action: actErrno,
				Names:  b.Denied,
			},
		},
	}

	program, err := policy.Assemble()
	if err != nil {
		return nil, err
	}

	return ExportBPF(program)
}

// ExportBPF 把 BPF 指令序列汇编成内核可加载的过滤器
func ExportBPF(filter []bpf.Instruction) (seccomp.Filter, error) {
	raw, err := bpf.Assemble(filter)
	if err != nil {
		return nil, err
	}
	return sockFilter(raw), nil
}

// sockFilter 把原始 BPF 指令转换为 SockFilter 格式
func sockFilter(raw []bpf.RawInstruction) []syscall.SockFilter {
	filter := make([]syscall.SockFilter, 0, len(raw))
	for _, instruction := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: instruction.Op,
			Jt:   instruction.Jt,
			Jf:   instruction.Jf,
			K:    instruction.K,
		})
	}
	return filter
}
