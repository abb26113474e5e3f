// Package zygote 组装 Android 运行时的启动参数
//
// 这是一个最小化的进程启动引导（zygote-light）：准备环境变量、
// 解析入口参数，然后由 pkg/forkexec 在完成根目录切换的沙箱内
// execve 运行时入口。不做真正 Zygote 的类预加载
//
// 不变量：这里产出的所有路径都是沙箱视图内的路径（/system/...），
// 绝不出现宿主机路径。路径只在根目录切换之后由内核解析一次
package zygote

import "fmt"

const (
	// Entry64 是 64 位运行时入口在沙箱内的路径
	Entry64 = "/system/bin/app_process64"
	// Entry32 是 32 位运行时入口在沙箱内的路径
	Entry32 = "/system/bin/app_process32"

	// DefaultEntrypoint 是运行时启动后加载的主类
	DefaultEntrypoint = "android.app.ActivityThread"
)

// Spec 描述一次运行时启动
// 字段在启动前填好，之后不再修改
type Spec struct {
	// Package 是应用包名（如 com.example.app）
	Package string

	// Entrypoint 是运行时加载的主类，为空时使用 DefaultEntrypoint
	Entrypoint string

	// Use32Bit 选择 32 位入口，默认 64 位
	Use32Bit bool

	// ExtraEnv 追加到标准环境之后
	ExtraEnv []string
}

// Entry 返回本次启动的运行时入口路径（沙箱视图内）
func (s *Spec) Entry() string {
	if s.Use32Bit {
		return Entry32
	}
	return Entry64
}

// Args 返回 execve 的参数列表
// app_process 的约定：argv[1] 是父目录，随后是运行时选项和主类
func (s *Spec) Args() []string {
	entrypoint := s.Entrypoint
	if entrypoint == "" {
		entrypoint = DefaultEntrypoint
	}
	return []string{
		s.Entry(),
		"/system/bin",
		"--application",
		fmt.Sprintf("--nice-name=%s", s.Package),
		entrypoint,
	}
}

// Env 返回运行时的标准环境变量
// 全部指向沙箱视图内的路径
func (s *Spec) Env() []string {
	env := []string{
		"ANDROID_ROOT=/system",
		"ANDROID_DATA=/data",
		"ANDROID_STORAGE=/storage",
		"ANDROID_RUNTIME_ROOT=/apex/com.android.runtime",
		"ANDROID_TZDATA_ROOT=/apex/com.android.tzdata",
		"LD_LIBRARY_PATH=/system/lib64:/system/lib",
		"PATH=/system/bin:/system/xbin",
		"HOME=/data",
		"TMPDIR=/tmp",
	}
	return append(env, s.ExtraEnv...)
}
