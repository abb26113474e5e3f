// rundroid 在 Linux 桌面上以沙箱前缀运行未修改的 Android 应用
//
// 子命令：
//
//	run    <package> --payload <dir>   在前缀内启动运行时
//	stop   <package>                   终止运行时
//	reset  <package>                   清空应用数据，保留骨架
//	doctor                             探测宿主机能力
//	logs   <package>                   输出前缀的运行时日志
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/zqzqsb/rundroid/config"
	"github.com/zqzqsb/rundroid/container"
	"github.com/zqzqsb/rundroid/doctor"
)

func usage() {
	fmt.Fprintf(os.Stderr, `用法: rundroid <command> [flags]

命令:
  run <package> --payload <dir>   启动应用
  stop <package>                  停止应用
  reset <package>                 清空应用数据
  doctor                          检查宿主机能力
  logs <package>                  查看运行时日志
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rundroid:", err)
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "run":
		code = cmdRun(cfg, os.Args[2:])
	case "stop":
		code = cmdStop(cfg, os.Args[2:])
	case "reset":
		code = cmdReset(cfg, os.Args[2:])
	case "doctor":
		code = cmdDoctor()
	case "logs":
		code = cmdLogs(cfg, os.Args[2:])
	default:
		usage()
		code = 2
	}
	os.Exit(code)
}

// packageArg 取出子命令的包名参数
func packageArg(fs *pflag.FlagSet) (string, bool) {
	if fs.NArg() != 1 {
		return "", false
	}
	return fs.Arg(0), true
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, "rundroid:", err)
	return 1
}

func cmdRun(cfg *config.Config, args []string) int {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	payload := fs.String("payload", "", "payload 根目录（已解包的系统镜像）")
	foreground := fs.Bool("foreground", cfg.Foreground, "同步等待运行时退出")
	fs.Parse(args)

	pkg, ok := packageArg(fs)
	if !ok || *payload == "" {
		fmt.Fprintln(os.Stderr, "用法: rundroid run <package> --payload <dir>")
		return 2
	}

	m := newManager(cfg)
	h, err := m.Launch(pkg, *payload)
	if err != nil {
		return fail(err)
	}

	if !*foreground {
		fmt.Printf("%s started, pid %d\n", pkg, h.PID)
		return 0
	}

	exitCode, err := h.Wait()
	if err != nil {
		return fail(err)
	}
	return exitCode
}

func cmdStop(cfg *config.Config, args []string) int {
	fs := pflag.NewFlagSet("stop", pflag.ExitOnError)
	fs.Parse(args)

	pkg, ok := packageArg(fs)
	if !ok {
		fmt.Fprintln(os.Stderr, "用法: rundroid stop <package>")
		return 2
	}

	out, err := newManager(cfg).Stop(pkg)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s: %s\n", pkg, out)
	return 0
}

func cmdReset(cfg *config.Config, args []string) int {
	fs := pflag.NewFlagSet("reset", pflag.ExitOnError)
	fs.Parse(args)

	pkg, ok := packageArg(fs)
	if !ok {
		fmt.Fprintln(os.Stderr, "用法: rundroid reset <package>")
		return 2
	}

	if err := newManager(cfg).Reset(pkg); err != nil {
		return fail(err)
	}
	fmt.Printf("%s: data reset\n", pkg)
	return 0
}

func cmdDoctor() int {
	caps := doctor.Detect()
	fmt.Print(caps.Report())
	if !caps.Sandboxable() {
		fmt.Println("\nhost cannot run sandboxes")
		return 1
	}
	return 0
}

func cmdLogs(cfg *config.Config, args []string) int {
	fs := pflag.NewFlagSet("logs", pflag.ExitOnError)
	launch := fs.Bool("launch", false, "输出编排日志而不是运行时输出")
	fs.Parse(args)

	pkg, ok := packageArg(fs)
	if !ok {
		fmt.Fprintln(os.Stderr, "用法: rundroid logs <package>")
		return 2
	}

	m := newManager(cfg)
	p := m.Prefix(pkg)
	path := p.RuntimeLog()
	if *launch {
		path = p.LaunchLog()
	}
	f, err := os.Open(path)
	if err != nil {
		return fail(err)
	}
	defer f.Close()
	io.Copy(os.Stdout, f)
	return 0
}

func newManager(cfg *config.Config) *container.Manager {
	logger, _ := container.NewLogger(os.DevNull, cfg.LogLevel)
	return container.NewManager(cfg, doctor.Detect(), logger)
}
