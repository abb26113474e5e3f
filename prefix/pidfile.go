package prefix

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PidFileName 是运行记录文件名
// 内容格式为 "<pid> <启动时间unix秒>\n"，由独立的 stop 调用解析
const PidFileName = "run.pid"

// ErrMalformedPidFile 表示运行记录无法解析
var ErrMalformedPidFile = fmt.Errorf("prefix: malformed %s", PidFileName)

// PidFile 返回运行记录文件的路径
func (p *Prefix) PidFile() string {
	return filepath.Join(p.Root, PidFileName)
}

// WritePid 记录本次启动的子进程
func (p *Prefix) WritePid(pid int, startedAt time.Time) error {
	content := fmt.Sprintf("%d %d\n", pid, startedAt.Unix())
	return os.WriteFile(p.PidFile(), []byte(content), 0644)
}

// ReadPid 读取运行记录
// 文件不存在时返回 os.ErrNotExist，调用方据此判断"未运行"
func (p *Prefix) ReadPid() (pid int, startedAt time.Time, err error) {
	content, err := os.ReadFile(p.PidFile())
	if err != nil {
		return 0, time.Time{}, err
	}
	fields := strings.Fields(string(content))
	if len(fields) != 2 {
		return 0, time.Time{}, ErrMalformedPidFile
	}
	pid, err = strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return 0, time.Time{}, ErrMalformedPidFile
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, ErrMalformedPidFile
	}
	return pid, time.Unix(ts, 0), nil
}

// RemovePid 删除运行记录，文件不存在不算错误
func (p *Prefix) RemovePid() error {
	err := os.Remove(p.PidFile())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Alive 报告运行记录指向的进程是否存活
// 返回值：
//   - pid, true:  记录存在且进程存活
//   - pid, false: 记录存在但进程已消失（陈旧记录）
//   - 0, false:   没有记录
//
// 陈旧记录不是错误，调用方应当视为"未运行"并清理记录
func (p *Prefix) Alive() (pid int, alive bool, err error) {
	pid, _, err = p.ReadPid()
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	// 信号 0 只做存在性检查
	if err := syscall.Kill(pid, 0); err != nil {
		if err == syscall.ESRCH {
			return pid, false, nil
		}
		if err == syscall.EPERM {
			// 进程存在但属于别人
			return pid, true, nil
		}
		return pid, false, err
	}
	return pid, true, nil
}
