package container

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/rundroid/config"
	"github.com/zqzqsb/rundroid/doctor"
	"github.com/zqzqsb/rundroid/pkg/binderfs"
	"github.com/zqzqsb/rundroid/pkg/cgroup"
	"github.com/zqzqsb/rundroid/pkg/forkexec"
	"github.com/zqzqsb/rundroid/pkg/mount"
	"github.com/zqzqsb/rundroid/pkg/pipe"
	"github.com/zqzqsb/rundroid/pkg/rlimit"
	"github.com/zqzqsb/rundroid/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/rundroid/prefix"
	"github.com/zqzqsb/rundroid/services"
	"github.com/zqzqsb/rundroid/zygote"
)

// StoppedOutcome 是 stop 操作的结果
type StoppedOutcome int

const (
	// WasNotRunning 表示目标本来就没有运行（包括陈旧的运行记录）
	WasNotRunning StoppedOutcome = iota
	// WasRunning 表示目标在运行并已被终止
	WasRunning
)

func (s StoppedOutcome) String() string {
	if s == WasRunning {
		return "was running"
	}
	return "was not running"
}

// Handle 是一次启动产出的子进程句柄
type Handle struct {
	PID       int
	StartedAt time.Time
	Prefix    *prefix.Prefix

	logger  *zap.Logger
	logDone <-chan struct{}
	logFile *os.File
	server  *services.Server
	cg      *cgroup.Group
}

// Manager 编排前缀的生命周期操作
// 每次 launch 是单线程控制流：隔离靠进程分离，不靠进程内并发
type Manager struct {
	cfg    *config.Config
	caps   doctor.Capabilities
	logger *zap.Logger
}

// NewManager 创建生命周期编排器
func NewManager(cfg *config.Config, caps doctor.Capabilities, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, caps: caps, logger: logger}
}

// Prefix 定位包名对应的前缀，不触碰磁盘
func (m *Manager) Prefix(pkg string) *prefix.Prefix {
	return prefix.New(m.cfg.PrefixesDir(), pkg)
}

// Ensure 幂等地创建前缀骨架
func (m *Manager) Ensure(pkg string) (*prefix.Prefix, error) {
	p := m.Prefix(pkg)
	if err := p.Ensure(); err != nil {
		return nil, err
	}
	return p, nil
}

// Launch 在前缀内启动运行时，走完整序列：
// 前置检查 → 挂载计划 → binderfs 参数 → 服务注册表 →
// fork + 命名空间 → 写运行记录
// 成功返回句柄；失败返回按阶段分类的错误
func (m *Manager) Launch(pkg, payloadRoot string) (h *Handle, err error) {
	p, err := m.Ensure(pkg)
	if err != nil {
		return nil, err
	}

	logger, _ := NewLogger(p.LaunchLog(), m.cfg.LogLevel)
	logger = logger.With(zap.String("pkg", pkg))
	defer logger.Sync()

	// 并发启动的防线：同一个包串行化，靠运行记录检查
	pid, alive, err := p.Alive()
	if err != nil {
		if errors.Is(err, prefix.ErrMalformedPidFile) {
			logger.Warn("运行记录无法解析，按未运行处理", zap.Error(err))
			_ = p.RemovePid()
		} else {
			return nil, err
		}
	} else if alive {
		return nil, fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
	} else if pid > 0 {
		stale := &StaleProcessError{PID: pid}
		logger.Warn("清理陈旧的运行记录", zap.String("stage", "preflight"), zap.Error(stale))
		_ = p.RemovePid()
	}

	// 宿主机能力预检，binderfs 缺失不必等到子进程里才失败
	if !m.caps.UserNamespaces {
		return nil, fmt.Errorf("%w: user namespaces", ErrNamespaceUnsupported)
	}
	if !m.caps.Binderfs {
		return nil, ErrBinderfsUnavailable
	}

	spec := &zygote.Spec{Package: pkg}
	if err := spec.ValidatePayload(payloadRoot); err != nil {
		logger.Error("payload 校验失败", zap.String("stage", "payload"), zap.Error(err))
		return nil, err
	}

	// 挂载计划：payload → system 在前，binderfs 在 dev tmpfs 之后
	// apex 是可选绑定：旧版镜像没有 apex 目录，由 FilterNotExist 剔除
	builder := mount.NewAndroidBuilder(payloadRoot).
		WithBind(filepath.Join(payloadRoot, "apex"), "apex", true)
	if m.caps.PIDNamespaces {
		builder.WithProc().WithSysfs()
	} else {
		// 不带 PID 命名空间挂 proc 会把宿主机进程暴露进沙箱
		logger.Warn("宿主机不支持 PID 命名空间，跳过 /proc 和 /sys 挂载",
			zap.String("stage", "mount"))
	}
	builder.FilterNotExist()
	if err := builder.Validate(); err != nil {
		return nil, err
	}
	mountParams, err := builder.Build()
	if err != nil {
		return nil, err
	}
	logger.Info(builder.String(), zap.String("stage", "mount"))

	binderParams, err := binderfs.Params(mount.BinderfsDir, "dev", binderfs.ConventionalDevices)
	if err != nil {
		return nil, err
	}

	// 注册表在 exec 之前就绪，启动早期的服务查询才有人应答
	server := services.NewServer(services.Default(logger), logger)
	if err := server.Start(p.Root); err != nil {
		return nil, fmt.Errorf("container: service registry: %w", err)
	}
	defer func() {
		if err != nil {
			server.Close()
		}
	}()

	// 运行时输出重定向到有上限的采集管道，落到 logs/runtime.log
	logFile, err := os.OpenFile(p.RuntimeLog(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	logDone, logW, err := pipe.NewPipe(logFile, m.cfg.RuntimeLogLimit)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	defer logW.Close() // 子进程持有自己的副本
	defer func() {
		if err != nil {
			logFile.Close()
		}
	}()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, err
	}
	defer devNull.Close()

	var filter *syscall.SockFprog
	if m.cfg.Seccomp {
		policy := libseccomp.AndroidPolicy()
		f, err := policy.Build()
		if err != nil {
			return nil, err
		}
		filter = f.SockFprog()
	}

	// cgroup 隔离是尽力而为：v2 不可用时降级并记录
	var (
		cg       *cgroup.Group
		syncFunc func(int) error
	)
	if m.cfg.Cgroup {
		cg, err = m.setupCgroup(pkg, logger)
		if err != nil {
			return nil, err
		}
		if cg != nil {
			syncFunc = func(pid int) error { return cg.AddProc(pid) }
			defer func() {
				if err != nil {
					cg.Destroy()
				}
			}()
		}
	}

	r := m.newRunner(p.Root, spec, mountParams, binderParams, filter,
		[]uintptr{devNull.Fd(), logW.Fd(), logW.Fd()}, syncFunc, cg != nil)

	logger.Info("启动运行时",
		zap.String("stage", "exec"),
		zap.String("entry", spec.Entry()),
		zap.Uintptr("clone_flags", r.CloneFlags))

	pid, err = r.Start()
	if err != nil {
		err = classifyLaunchError(err, builder.Mounts, spec.Entry())
		logger.Error("启动失败", zap.String("stage", "exec"), zap.Error(err))
		return nil, err
	}

	startedAt := time.Now()
	if err := p.WritePid(pid, startedAt); err != nil {
		// 记录写不进去就无法 stop，必须终止孤儿
		syscall.Kill(pid, syscall.SIGKILL)
		reap(pid)
		return nil, err
	}

	logger.Info("运行时已启动", zap.String("stage", "exec"), zap.Int("pid", pid))
	return &Handle{
		PID:       pid,
		StartedAt: startedAt,
		Prefix:    p,
		logger:    logger,
		logDone:   logDone,
		logFile:   logFile,
		server:    server,
		cg:        cg,
	}, nil
}

// newRunner 按宿主机能力组装沙箱子进程的配置
// 安全基线与能力检测无关：禁止特权提升，execve 前清空全部能力集——
// 运行时在命名空间内以 root 身份执行，但不保留任何内核能力
func (m *Manager) newRunner(root string, spec *zygote.Spec, mounts []mount.SyscallParams,
	binder *binderfs.SyscallParams, filter *syscall.SockFprog,
	files []uintptr, syncFunc func(int) error, useCgroup bool) *forkexec.Runner {
	cloneFlags := uintptr(unix.CLONE_NEWUSER | unix.CLONE_NEWNS)
	if m.caps.PIDNamespaces {
		cloneFlags |= unix.CLONE_NEWPID
	}
	if m.caps.UTSNamespaces {
		cloneFlags |= unix.CLONE_NEWUTS
	}
	if m.caps.IPCNamespaces {
		cloneFlags |= unix.CLONE_NEWIPC
	}
	hostname := ""
	if m.caps.UTSNamespaces {
		hostname = "android"
	}
	limits := rlimit.DefaultRuntime()

	return &forkexec.Runner{
		Args: spec.Args(),
		Env: append(spec.Env(),
			"RUNDROID_SERVICE_SOCKET="+services.InSandboxSocket),
		RLimits:                limits.PrepareRLimit(),
		Files:                  files,
		WorkDir:                "/",
		Seccomp:                filter,
		CloneFlags:             cloneFlags,
		Mounts:                 mounts,
		Binderfs:               binder,
		Root:                   root,
		HostName:               hostname,
		SyncFunc:               syncFunc,
		NoNewPrivs:             true,
		DropCaps:               true,
		UnshareCgroupAfterSync: useCgroup,
	}
}

// cpuPeriod 是 CPU 带宽限制的调度周期（微秒）
const cpuPeriod = 100000

// cgroupName 返回包名对应的 cgroup 路径（相对统一层级根）
// launch 和 stop 在不同进程里用同一路径定位节点
func cgroupName(pkg string) string {
	return "rundroid/" + pkg
}

// setupCgroup 创建前缀的 cgroup 并应用配置的上限
// v2 不可用返回 (nil, nil)，其余错误向上传递
func (m *Manager) setupCgroup(pkg string, logger *zap.Logger) (*cgroup.Group, error) {
	ct := cgroup.DefaultControllers()
	if m.cfg.CPUSet != "" {
		ct.CPUSet = true
	}
	cg, err := cgroup.New(cgroupName(pkg), ct)
	if errors.Is(err, cgroup.ErrV2Unavailable) {
		logger.Warn("cgroup v2 不可用，跳过资源隔离", zap.String("stage", "cgroup"))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if m.cfg.MemoryLimit > 0 {
		if err := cg.SetMemoryLimit(m.cfg.MemoryLimit); err != nil {
			cg.Destroy()
			return nil, err
		}
	}
	if m.cfg.PidsLimit > 0 {
		if err := cg.SetProcLimit(m.cfg.PidsLimit); err != nil {
			cg.Destroy()
			return nil, err
		}
	}
	if m.cfg.CPULimit > 0 {
		if err := cg.SetCPUBandwidth(m.cfg.CPULimit*cpuPeriod/100, cpuPeriod); err != nil {
			cg.Destroy()
			return nil, err
		}
	}
	if m.cfg.CPUSet != "" {
		if err := cg.SetCPUSet([]byte(m.cfg.CPUSet)); err != nil {
			cg.Destroy()
			return nil, err
		}
	}
	return cg, nil
}

// Wait 同步等待运行时退出并清理本次启动的宿主机侧资源
// 前台模式由 CLI 在 Launch 之后调用
func (h *Handle) Wait() (exitCode int, err error) {
	var ws syscall.WaitStatus
	_, err = syscall.Wait4(h.PID, &ws, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(h.PID, &ws, 0, nil)
	}
	h.close()
	_ = h.Prefix.RemovePid()
	if err != nil {
		return 0, err
	}
	if ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return ws.ExitStatus(), nil
}

// close 释放句柄持有的宿主机侧资源
func (h *Handle) close() {
	if h.server != nil {
		h.server.Close()
	}
	if h.logDone != nil {
		// 等采集协程把剩余输出刷进日志文件
		select {
		case <-h.logDone:
		case <-time.After(time.Second):
		}
	}
	if h.logFile != nil {
		h.logFile.Close()
	}
	if h.cg != nil {
		// 销毁前读出本次运行的资源账目
		cpu, cerr := h.cg.CPUUsage()
		peak, perr := h.cg.MemoryMaxUsage()
		if h.logger != nil && (cerr == nil || perr == nil) {
			h.logger.Info("运行时资源用量",
				zap.Int("pid", h.PID),
				zap.Uint64("cpu_ns", cpu),
				zap.Uint64("memory_peak_bytes", peak))
		}
		h.cg.Destroy()
	}
}

// WaitBoot 等待运行时度过启动早期
// 完整的 boot 完成探测需要整机镜像的属性服务，这里化简为
// 存活性判据：期限内进程没有退出即视为启动成功
func (m *Manager) WaitBoot(h *Handle, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(h.PID) {
			return fmt.Errorf("container: runtime exited during boot (pid %d)", h.PID)
		}
		if h.cg != nil {
			if mem, err := h.cg.MemoryUsage(); err == nil {
				m.logger.Debug("启动期内存用量",
					zap.Int("pid", h.PID), zap.Uint64("memory_bytes", mem))
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// Stop 终止前缀的运行时进程
// 序列：SIGTERM → 限时等待 → SIGKILL → 删除运行记录
// 没有运行记录、记录陈旧都返回 WasNotRunning，不算错误
func (m *Manager) Stop(pkg string) (StoppedOutcome, error) {
	p := m.Prefix(pkg)
	pid, alive, err := p.Alive()
	if err != nil {
		if errors.Is(err, prefix.ErrMalformedPidFile) {
			_ = p.RemovePid()
			return WasNotRunning, nil
		}
		return WasNotRunning, err
	}
	if !alive {
		// 包括陈旧记录：进程已消失，清掉记录即可
		_ = p.RemovePid()
		return WasNotRunning, nil
	}

	m.logger.Info("停止运行时", zap.String("pkg", pkg), zap.Int("pid", pid))
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return WasNotRunning, err
	}

	deadline := time.Now().Add(m.cfg.StopTimeout)
	for time.Now().Before(deadline) {
		reap(pid)
		if !processAlive(pid) {
			m.cleanupCgroup(pkg)
			_ = p.RemovePid()
			return WasRunning, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	// 限时未退出，强制终止
	m.logger.Warn("限时未退出，升级为 SIGKILL", zap.String("pkg", pkg), zap.Int("pid", pid))
	_ = syscall.Kill(pid, syscall.SIGKILL)
	reap(pid)
	m.cleanupCgroup(pkg)
	_ = p.RemovePid()
	return WasRunning, nil
}

// cleanupCgroup 清理启动时创建的 cgroup 节点
// 没有 PID 命名空间时运行时 fork 出的子孙不会随首进程死亡，
// 按 cgroup 账目把残留进程全部终止，再移除节点。
// stop 通常在另一个进程里执行，节点按路径重新打开；
// 节点不存在（未启用 cgroup 或已被 Handle 清理）时直接返回
func (m *Manager) cleanupCgroup(pkg string) {
	if !m.cfg.Cgroup {
		return
	}
	cg, err := cgroup.OpenExisting(cgroupName(pkg), cgroup.DefaultControllers())
	if err != nil {
		return
	}
	if pids, err := cg.Processes(); err == nil {
		for _, pid := range pids {
			m.logger.Warn("终止残留进程", zap.String("pkg", pkg), zap.Int("pid", pid))
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	}
	_ = cg.Remove()
}

// Reset 清空前缀的可写数据，保留骨架
// 运行中拒绝执行，避免从运行时脚下抽走数据
func (m *Manager) Reset(pkg string) error {
	p := m.Prefix(pkg)
	pid, alive, err := p.Alive()
	if err != nil && !errors.Is(err, prefix.ErrMalformedPidFile) {
		return err
	}
	if alive {
		return fmt.Errorf("%w: pid %d, stop it before reset", ErrAlreadyRunning, pid)
	}
	_ = p.RemovePid()
	return p.Reset()
}

// processAlive 用信号 0 探测进程存在
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// reap 非阻塞回收僵尸子进程
// 目标不是当前进程的子进程时 wait4 返回 ECHILD，忽略即可
func reap(pid int) {
	var ws syscall.WaitStatus
	_, _ = syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
}
