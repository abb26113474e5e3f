package cgroup

import (
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/sys/unix"
)

// Available 报告系统是否以 v2 统一层级挂载了 cgroup
// v1 的多层级模式不支持，资源隔离在 v1 系统上整体降级
func Available() bool {
	var st unix.Statfs_t
	if err := unix.Statfs(basePath, &st); err != nil {
		return false
	}
	return st.Type == unix.CGROUP2_SUPER_MAGIC
}

// New 在 prefix 路径下创建（或打开）一个 cgroup，
// 逐级创建目录并在每级父目录启用所需的控制器
func New(prefix string, ct *Controllers) (cg *Group, err error) {
	if !Available() {
		return nil, ErrV2Unavailable
	}

	g := &Group{
		path:    path.Join(basePath, prefix),
		control: ct,
	}
	if _, err := os.Stat(g.path); err == nil {
		g.existing = true
	}
	// 创建失败时清理新建的目录
	defer func() {
		if err != nil && !g.existing {
			remove(g.path)
		}
	}()

	s := ct.Names()
	controlMsg := []byte("+" + strings.Join(s, " +"))

	entries := strings.Split(prefix, "/")
	current := ""
	for _, e := range entries {
		parent := current
		current = current + "/" + e
		if _, err := os.Stat(path.Join(basePath, current)); os.IsNotExist(err) {
			if err := os.Mkdir(path.Join(basePath, current), dirPerm); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}

		ect, err := availableControllers(current)
		if err != nil {
			return nil, err
		}
		if ect.Contains(ct) {
			continue
		}
		if err := writeFile(path.Join(basePath, parent, cgroupSubtreeControl), controlMsg, filePerm); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// OpenExisting 打开一个已存在的 cgroup，校验所需控制器可用
func OpenExisting(prefix string, ct *Controllers) (*Group, error) {
	if !Available() {
		return nil, ErrV2Unavailable
	}
	ect, err := availableControllers(prefix)
	if err != nil {
		return nil, err
	}
	if !ect.Contains(ct) {
		return nil, fmt.Errorf("cgroup: requesting %v controllers but %v found", ct, ect)
	}
	return &Group{
		path:     path.Join(basePath, prefix),
		control:  ect,
		existing: true,
	}, nil
}

// availableControllers 读取指定 cgroup 可启用的控制器集合
func availableControllers(prefix string) (*Controllers, error) {
	return availableControllersPath(path.Join(basePath, prefix, cgroupControllers))
}

func availableControllersPath(p string) (*Controllers, error) {
	content, err := readFile(p)
	if err != nil {
		return nil, err
	}
	return parseControllers(string(content)), nil
}
