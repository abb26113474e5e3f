// Package config 从环境变量加载运行配置
// 所有变量带 RUNDROID_ 前缀，例如 RUNDROID_DATA_DIR、RUNDROID_LOG_LEVEL
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config 是进程级的运行配置
// CLI 标志可以覆盖其中的单项
type Config struct {
	// DataDir 是前缀目录的父目录
	DataDir string `envconfig:"DATA_DIR" default:"~/.local/share/rundroid"`

	// LogLevel 是结构化日志级别（debug/info/warn/error）
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// StopTimeout 是 stop 操作从 SIGTERM 升级到 SIGKILL 的等待上限
	StopTimeout time.Duration `envconfig:"STOP_TIMEOUT" default:"5s"`

	// Foreground 为真时 launch 同步等待子进程退出
	Foreground bool `envconfig:"FOREGROUND" default:"true"`

	// Seccomp 控制是否对运行时加载系统调用过滤器
	Seccomp bool `envconfig:"SECCOMP" default:"true"`

	// Cgroup 控制是否把运行时放入独立 cgroup（v2 不可用时自动降级）
	Cgroup bool `envconfig:"CGROUP" default:"true"`

	// MemoryLimit 是运行时的内存上限（字节），0 表示不限制
	MemoryLimit uint64 `envconfig:"MEMORY_LIMIT" default:"0"`

	// CPULimit 是运行时的 CPU 带宽上限，单位为单核的百分比
	// （200 表示两个核），0 表示不限制
	CPULimit uint64 `envconfig:"CPU_LIMIT" default:"0"`

	// CPUSet 限定运行时可用的 CPU 核心，格式如 "0-3,5"，空表示不限定
	CPUSet string `envconfig:"CPUSET" default:""`

	// PidsLimit 是运行时的进程数上限，0 表示不限制
	PidsLimit uint64 `envconfig:"PIDS_LIMIT" default:"0"`

	// RuntimeLogLimit 是运行时输出采集上限（字节）
	RuntimeLogLimit int64 `envconfig:"RUNTIME_LOG_LIMIT" default:"4194304"`
}

// Load 从环境变量加载配置并展开家目录
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("rundroid", &c); err != nil {
		return nil, err
	}
	c.DataDir = expandHome(c.DataDir)
	return &c, nil
}

// PrefixesDir 返回前缀目录的根
func (c *Config) PrefixesDir() string {
	return filepath.Join(c.DataDir, "prefixes")
}

// expandHome 展开路径开头的 ~
func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
