package cgroup

import "strings"

// Controllers 描述需要启用的 cgroup v2 控制器集合
type Controllers struct {
	CPU    bool
	CPUSet bool
	Memory bool
	Pids   bool
}

// DefaultControllers 返回沙箱实例默认需要的控制器
func DefaultControllers() *Controllers {
	return &Controllers{CPU: true, Memory: true, Pids: true}
}

// Names 返回启用的控制器名称列表
func (c *Controllers) Names() []string {
	var names []string
	if c.CPU {
		names = append(names, CPU)
	}
	if c.CPUSet {
		names = append(names, CPUSet)
	}
	if c.Memory {
		names = append(names, Memory)
	}
	if c.Pids {
		names = append(names, Pids)
	}
	return names
}

// Contains 报告 c 是否覆盖了 o 需要的全部控制器
func (c *Controllers) Contains(o *Controllers) bool {
	if o.CPU && !c.CPU {
		return false
	}
	if o.CPUSet && !c.CPUSet {
		return false
	}
	if o.Memory && !c.Memory {
		return false
	}
	if o.Pids && !c.Pids {
		return false
	}
	return true
}

// Intersect 返回两个集合的交集
func (c *Controllers) Intersect(o *Controllers) *Controllers {
	return &Controllers{
		CPU:    c.CPU && o.CPU,
		CPUSet: c.CPUSet && o.CPUSet,
		Memory: c.Memory && o.Memory,
		Pids:   c.Pids && o.Pids,
	}
}

// String 返回控制器集合的字符串表示
func (c *Controllers) String() string {
	return "[" + strings.Join(c.Names(), ", ") + "]"
}

// parseControllers 解析 cgroup.controllers 的内容
func parseControllers(content string) *Controllers {
	var ct Controllers
	for _, name := range strings.Fields(content) {
		switch name {
		case CPU:
			ct.CPU = true
		case CPUSet:
			ct.CPUSet = true
		case Memory:
			ct.Memory = true
		case Pids:
			ct.Pids = true
		}
	}
	return &ct
}
