package cgroup

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ReadProcesses 读取 cgroup.procs 并返回进程 ID 列表
func ReadProcesses(path string) ([]int, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}
	procs := strings.Split(string(content), "\n")
	rt := make([]int, 0, len(procs))
	for _, x := range procs {
		if len(x) == 0 {
			continue
		}
		pid, err := strconv.Atoi(x)
		if err != nil {
			return nil, err
		}
		rt = append(rt, pid)
	}
	return rt, nil
}

// AddProcesses 把进程写入 cgroup.procs
func AddProcesses(path string, procs []int) error {
	f, err := os.OpenFile(path, os.O_RDWR, filePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, p := range procs {
		if _, err := f.WriteString(strconv.Itoa(p)); err != nil {
			return err
		}
	}
	return nil
}

// remove 删除文件或目录，空名称直接返回
func remove(name string) error {
	if name != "" {
		return os.Remove(name)
	}
	return nil
}

// readFile 读取文件内容，cgroup 文件系统的读取可能被 EINTR 打断
func readFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	for err != nil && errors.Is(err, syscall.EINTR) {
		data, err = os.ReadFile(p)
	}
	return data, err
}

// writeFile 写入文件内容，处理 EINTR 重试
func writeFile(p string, content []byte, perm fs.FileMode) error {
	err := os.WriteFile(p, content, perm)
	for err != nil && errors.Is(err, syscall.EINTR) {
		err = os.WriteFile(p, content, perm)
	}
	return err
}
