package mount

// Builder 以链式调用方式收集挂载计划
// 计划的顺序即执行顺序，Validate 负责检查顺序约束
type Builder struct {
	Mounts []Mount
}

// NewBuilder 创建一个空的挂载计划构建器
func NewBuilder() *Builder {
	return &Builder{}
}
