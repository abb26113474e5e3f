// Package doctor 探测宿主机能力
//
// 编排层在启动前消费这些布尔事实来决定命名空间集合和降级路径：
// 没有 PID 命名空间就跳过 /proc 挂载，没有 binderfs 直接拒绝启动。
// 探测只读取 proc/sys 接口，不改变系统状态
package doctor

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/zqzqsb/rundroid/pkg/cgroup"
)

// Capabilities 是编排层消费的宿主机能力事实
type Capabilities struct {
	// UserNamespaces 表示无特权用户命名空间可用
	UserNamespaces bool
	// PIDNamespaces 表示 PID 命名空间可用
	PIDNamespaces bool
	// UTSNamespaces 表示 UTS 命名空间可用
	UTSNamespaces bool
	// IPCNamespaces 表示 IPC 命名空间可用
	IPCNamespaces bool
	// Binderfs 表示内核编译了 binderfs
	Binderfs bool
	// CgroupV2 表示 cgroup 以 v2 统一层级挂载
	CgroupV2 bool
	// SubUIDRange 是当前用户在 /etc/subuid 中的映射范围，
	// Count 为 0 表示没有配置（只能用单条映射）
	SubUIDRange Range
	SubGIDRange Range
}

// Range 是一段 subuid/subgid 映射范围
type Range struct {
	Start int
	Count int
}

// Detect 探测全部能力事实
func Detect() Capabilities {
	return Capabilities{
		UserNamespaces: userNamespacesUsable(),
		PIDNamespaces:  namespaceAvailable("pid"),
		UTSNamespaces:  namespaceAvailable("uts"),
		IPCNamespaces:  namespaceAvailable("ipc"),
		Binderfs:       binderfsAvailable(),
		CgroupV2:       cgroup.Available(),
		SubUIDRange:    subIDRange("/etc/subuid"),
		SubGIDRange:    subIDRange("/etc/subgid"),
	}
}

// userNamespacesUsable 检查无特权用户命名空间
// 两个条件：内核暴露 user 命名空间，且 Debian 系的开关
// kernel.unprivileged_userns_clone 没有关闭
func userNamespacesUsable() bool {
	if !namespaceAvailable("user") {
		return false
	}
	content, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err != nil {
		// 开关不存在的内核默认允许
		return true
	}
	return strings.TrimSpace(string(content)) != "0"
}

// namespaceAvailable 通过 /proc/self/ns 检查命名空间类型
func namespaceAvailable(name string) bool {
	_, err := os.Stat("/proc/self/ns/" + name)
	return err == nil
}

// binderfsAvailable 检查内核是否注册了 binder 文件系统
func binderfsAvailable() bool {
	f, err := os.Open("/proc/filesystems")
	if err != nil {
		return false
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) > 0 && fields[len(fields)-1] == "binder" {
			return true
		}
	}
	return false
}

// subIDRange 解析 /etc/subuid 或 /etc/subgid 中当前用户的第一条范围
// 格式：用户名或数字 UID、起始 ID、数量，冒号分隔
func subIDRange(path string) Range {
	u, err := user.Current()
	if err != nil {
		return Range{}
	}
	f, err := os.Open(path)
	if err != nil {
		return Range{}
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Split(strings.TrimSpace(s.Text()), ":")
		if len(fields) != 3 {
			continue
		}
		if fields[0] != u.Username && fields[0] != u.Uid {
			continue
		}
		start, err1 := strconv.Atoi(fields[1])
		count, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			continue
		}
		return Range{Start: start, Count: count}
	}
	return Range{}
}

// Sandboxable 报告能否构成最低限度的沙箱
// 用户和挂载命名空间是硬前提，binderfs 决定运行时能否启动
func (c Capabilities) Sandboxable() bool {
	return c.UserNamespaces && c.Binderfs
}

// Report 返回人类可读的探测报告
func (c Capabilities) Report() string {
	var sb strings.Builder
	line := func(name string, ok bool) {
		mark := "ok"
		if !ok {
			mark = "missing"
		}
		fmt.Fprintf(&sb, "%-24s %s\n", name, mark)
	}
	line("user namespaces", c.UserNamespaces)
	line("pid namespaces", c.PIDNamespaces)
	line("uts namespaces", c.UTSNamespaces)
	line("ipc namespaces", c.IPCNamespaces)
	line("binderfs", c.Binderfs)
	line("cgroup v2", c.CgroupV2)
	if c.SubUIDRange.Count > 0 {
		fmt.Fprintf(&sb, "%-24s %d:%d\n", "subuid range", c.SubUIDRange.Start, c.SubUIDRange.Count)
	} else {
		fmt.Fprintf(&sb, "%-24s none (single mapping only)\n", "subuid range")
	}
	return sb.String()
}
