// Package prefix 管理每个应用的隔离状态目录
//
// 前缀是应用在宿主机上的全部持久状态：固定的目录骨架、
// 挂载点、运行记录（run.pid）和启动日志。骨架创建是幂等的，
// reset 只清空可写子树，骨架本身只会被显式删除
package prefix

import (
	"fmt"
	"os"
	"path/filepath"
)

// Prefix 标识一个应用的前缀
type Prefix struct {
	// Package 是应用包名，同时是前缀目录名
	Package string
	// Root 是前缀根目录的绝对路径
	Root string
}

// New 在 baseDir 下定位包名对应的前缀
func New(baseDir, pkg string) *Prefix {
	return &Prefix{
		Package: pkg,
		Root:    filepath.Join(baseDir, pkg),
	}
}

// skeleton 返回骨架目录列表（相对前缀根）
// 顺序无关紧要，MkdirAll 幂等
func (p *Prefix) skeleton() []string {
	return []string{
		"system",
		"data",
		filepath.Join("data", "app", p.Package),
		filepath.Join("data", "data", p.Package),
		filepath.Join("data", "cache"),
		filepath.Join("data", "dalvik-cache"),
		"dev",
		"proc",
		"sys",
		"tmp",
		"apex",
		"linkerconfig",
		"logs",
	}
}

// Ensure 创建前缀的目录骨架，重复调用不报错、不产生重复状态
// 骨架必须在任何挂载或 exec 之前完整存在
func (p *Prefix) Ensure() error {
	for _, dir := range p.skeleton() {
		if err := os.MkdirAll(filepath.Join(p.Root, dir), 0755); err != nil {
			return fmt.Errorf("prefix: create %s: %w", dir, err)
		}
	}
	return p.ensureLinkerConfig()
}

// Exists 报告前缀目录是否已创建
func (p *Prefix) Exists() bool {
	fi, err := os.Stat(p.Root)
	return err == nil && fi.IsDir()
}

// resetTargets 是 reset 要清空内容的可写子树（相对前缀根）
// 目录本身保留
func (p *Prefix) resetTargets() []string {
	return []string{
		filepath.Join("data", "data", p.Package),
		filepath.Join("data", "cache"),
		filepath.Join("data", "dalvik-cache"),
	}
}

// Reset 清空应用的数据和缓存子树，保留骨架
// 对不存在的前缀和已清空的前缀重复调用都是安全的
// 运行中检查由上层编排完成，这里只做文件操作
func (p *Prefix) Reset() error {
	for _, dir := range p.resetTargets() {
		if err := removeContents(filepath.Join(p.Root, dir)); err != nil {
			return fmt.Errorf("prefix: reset %s: %w", dir, err)
		}
	}
	return nil
}

// removeContents 删除目录下的所有条目，目录本身保留
func removeContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// LogDir 返回启动日志目录
func (p *Prefix) LogDir() string {
	return filepath.Join(p.Root, "logs")
}

// LaunchLog 返回编排日志文件路径（结构化日志）
func (p *Prefix) LaunchLog() string {
	return filepath.Join(p.LogDir(), "launch.log")
}

// RuntimeLog 返回运行时输出采集文件路径
func (p *Prefix) RuntimeLog() string {
	return filepath.Join(p.LogDir(), "runtime.log")
}
