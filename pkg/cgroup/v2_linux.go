package cgroup

import (
	"bufio"
	"bytes"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
)

// Group 是一个 cgroup v2 节点
// 所有控制器挂载在统一层级下，路径即身份
type Group struct {
	path        string
	control     *Controllers
	subtreeOnce sync.Once
	subtreeErr  error
	existing    bool
}

// String 返回 cgroup 的路径和可用控制器
func (c *Group) String() string {
	ct, _ := availableControllersPath(path.Join(c.path, cgroupControllers))
	return "v2(" + c.path + ")" + ct.String()
}

// AddProc 把进程加入这个 cgroup
// 启动流程通过 forkexec 的 SyncFunc 在 execve 之前调用它
func (c *Group) AddProc(pids ...int) error {
	return AddProcesses(path.Join(c.path, cgroupProcs), pids)
}

// Processes 返回 cgroup 中的所有进程 ID
func (c *Group) Processes() ([]int, error) {
	return ReadProcesses(path.Join(c.path, cgroupProcs))
}

// New 基于当前 cgroup 创建子 cgroup
func (c *Group) New(name string) (*Group, error) {
	if err := c.enableSubtreeControl(); err != nil {
		return nil, err
	}
	g := &Group{
		path:    path.Join(c.path, name),
		control: c.control,
	}
	if err := os.Mkdir(g.path, dirPerm); err != nil {
		if !os.IsExist(err) {
			return nil, err
		}
		g.existing = true
	}
	return g, nil
}

// enableSubtreeControl 在当前节点启用子树控制器
func (c *Group) enableSubtreeControl() error {
	c.subtreeOnce.Do(func() {
		ct, err := availableControllersPath(path.Join(c.path, cgroupControllers))
		if err != nil {
			c.subtreeErr = err
			return
		}
		ect, err := availableControllersPath(path.Join(c.path, cgroupSubtreeControl))
		if err != nil {
			c.subtreeErr = err
			return
		}
		if ect.Contains(ct) {
			return
		}
		s := ct.Names()
		controlMsg := []byte("+" + strings.Join(s, " +"))
		c.subtreeErr = writeFile(path.Join(c.path, cgroupSubtreeControl), controlMsg, filePerm)
	})
	return c.subtreeErr
}

// Destroy 删除这个 cgroup
// 打开的已有 cgroup 不会被删除
func (c *Group) Destroy() error {
	if !c.existing {
		return remove(c.path)
	}
	return nil
}

// Remove 删除 cgroup 目录，不检查节点归属
// stop 流程在另一个进程里打开节点清理残留进程，
// 清理完成后用它移除 launch 创建的节点
func (c *Group) Remove() error {
	return remove(c.path)
}

// Existing 报告这个 cgroup 是否是打开的已有节点
func (c *Group) Existing() bool {
	return c.existing
}

// CPUUsage 读取总 CPU 使用量（纳秒）
func (c *Group) CPUUsage() (uint64, error) {
	b, err := c.ReadFile("cpu.stat")
	if err != nil {
		return 0, err
	}
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		parts := strings.Fields(s.Text())
		if len(parts) == 2 && parts[0] == "usage_usec" {
			v, err := strconv.Atoi(parts[1])
			if err != nil {
				return 0, err
			}
			return uint64(v) * 1000, nil
		}
	}
	return 0, os.ErrNotExist
}

// MemoryUsage 读取当前内存使用量（字节）
func (c *Group) MemoryUsage() (uint64, error) {
	if !c.control.Memory {
		return 0, ErrNotInitialized
	}
	return c.ReadUint("memory.current")
}

// MemoryMaxUsage 读取峰值内存使用量
// memory.peak 需要内核 5.19 以上
func (c *Group) MemoryMaxUsage() (uint64, error) {
	if !c.control.Memory {
		return 0, ErrNotInitialized
	}
	return c.ReadUint("memory.peak")
}

// SetCPUBandwidth 设置 CPU 带宽限制，quota 和 period 单位为微秒
func (c *Group) SetCPUBandwidth(quota, period uint64) error {
	if !c.control.CPU {
		return ErrNotInitialized
	}
	content := strconv.FormatUint(quota, 10) + " " + strconv.FormatUint(period, 10)
	return c.WriteFile("cpu.max", []byte(content))
}

// SetCPUSet 设置可用的 CPU 核心，格式如 "0-3,5"
func (c *Group) SetCPUSet(content []byte) error {
	if !c.control.CPUSet {
		return ErrNotInitialized
	}
	return c.WriteFile("cpuset.cpus", content)
}

// SetMemoryLimit 设置内存使用上限（字节）
func (c *Group) SetMemoryLimit(l uint64) error {
	if !c.control.Memory {
		return ErrNotInitialized
	}
	return c.WriteUint("memory.max", l)
}

// SetProcLimit 设置进程数量上限
func (c *Group) SetProcLimit(l uint64) error {
	if !c.control.Pids {
		return ErrNotInitialized
	}
	return c.WriteUint("pids.max", l)
}

// WriteUint 把 uint64 值写入指定文件
func (c *Group) WriteUint(filename string, i uint64) error {
	return c.WriteFile(filename, []byte(strconv.FormatUint(i, 10)))
}

// ReadUint 从指定文件读取 uint64 值
func (c *Group) ReadUint(filename string) (uint64, error) {
	b, err := c.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, err
	}
	return s, nil
}

// WriteFile 写入 cgroup 文件，处理 EINTR
func (c *Group) WriteFile(name string, content []byte) error {
	p := path.Join(c.path, name)
	return writeFile(p, content, filePerm)
}

// ReadFile 读取 cgroup 文件，处理 EINTR
func (c *Group) ReadFile(name string) ([]byte, error) {
	p := path.Join(c.path, name)
	return readFile(p)
}
