package libseccomp

import (
	libseccomp "github.com/elastic/go-seccomp-bpf"
)

// ToSeccompAction 把本包的 Action 转换为 go-seccomp-bpf 的动作类型
//
// 转换对应关系：
//   - ActionAllow -> libseccomp.ActionAllow
//   - ActionErrno -> libseccomp.ActionErrno
//   - 其他        -> libseccomp.ActionKillProcess
func ToSeccompAction(a Action) libseccomp.Action {
	var action libseccomp.Action
	switch a.Action() {
	case ActionAllow:
		action = libseccomp.ActionAllow
	case ActionErrno:
		action = libseccomp.ActionErrno
	default:
		action = libseccomp.ActionKillProcess
	}
	return action
}
