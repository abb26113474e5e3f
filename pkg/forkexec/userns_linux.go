package forkexec

import (
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultMapping 返回单条映射字符串 "0 <hostID> 1"：
// 命名空间内的 root 映射到宿主机上的 hostID，范围为 1
// 这是无特权运行时唯一保证可写入的映射形式
func DefaultMapping(hostID int) string {
	return "0 " + strconv.Itoa(hostID) + " 1"
}

// writeIDMaps 由父进程调用，为刚 clone 出的子进程写入 uid/gid 映射
// 顺序是内核要求的：先写 uid_map，再写 setgroups（deny），最后写 gid_map
// ——不先拒绝 setgroups，无特权进程对 gid_map 的写入会被拒绝
func writeIDMaps(r *Runner, pid int) error {
	var uidMappings, gidMappings, setGroups []byte
	pidStr := strconv.Itoa(pid)

	// 未指定映射时使用默认映射：命名空间内的 root 即宿主机当前用户
	if r.UIDMappings == nil {
		uidMappings = []byte(DefaultMapping(unix.Geteuid()))
	} else {
		uidMappings = formatIDMappings(r.UIDMappings)
	}
	if err := writeFile("/proc/"+pidStr+"/uid_map", uidMappings); err != nil {
		return err
	}

	if r.GIDMappings == nil || !r.GIDMappingsEnableSetgroups {
		setGroups = setGIDDeny
	} else {
		setGroups = setGIDAllow
	}
	if err := writeFile("/proc/"+pidStr+"/setgroups", setGroups); err != nil {
		return err
	}

	if r.GIDMappings == nil {
		gidMappings = []byte(DefaultMapping(unix.Getegid()))
	} else {
		gidMappings = formatIDMappings(r.GIDMappings)
	}
	if err := writeFile("/proc/"+pidStr+"/gid_map", gidMappings); err != nil {
		return err
	}
	return nil
}

// formatIDMappings 把映射数组转换为 /proc/<pid>/{uid,gid}_map 的格式
// 每行 "内部ID 外部ID 数量"
func formatIDMappings(idMap []syscall.SysProcIDMap) []byte {
	var data []byte
	for _, im := range idMap {
		data = append(data, []byte(strconv.Itoa(im.ContainerID)+" "+strconv.Itoa(im.HostID)+" "+strconv.Itoa(im.Size)+"\n")...)
	}
	return data
}

// writeFile 用 unix.Open 直接写入
// proc 下的映射文件要求一次性完整写入，标准库的分段写入不可靠
func writeFile(path string, content []byte) error {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if _, err := unix.Write(fd, content); err != nil {
		unix.Close(fd)
		return err
	}
	if err := unix.Close(fd); err != nil {
		return err
	}
	return nil
}
