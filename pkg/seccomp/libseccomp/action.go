package libseccomp

// Action 定义了 seccomp 过滤器的动作类型
// 低 16 位是基本动作，高 16 位保留给附加数据
type Action uint32

// 动作常量从 1 开始递增，保证零值无效
const (
	ActionAllow Action = iota + 1 // 允许系统调用继续执行
	ActionErrno                   // 向调用进程返回错误码
	ActionKill                    // 立即终止进程
)

// Action 返回基本动作类型（不包含附加数据）
func (a Action) Action() Action {
	return Action(a & 0xffff)
}
