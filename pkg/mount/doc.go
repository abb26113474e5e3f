/*
Package mount 描述沙箱进程所看到的文件系统视图，并负责把这个视图变成
有序的挂载操作序列。

一次应用启动对应一份有序的挂载计划：

 1. 把解包后的 Android 系统镜像（payload）以只读方式绑定挂载到前缀的
    system 目录；
 2. 在 dev 和 tmp 上挂载可写的临时 tmpfs；
 3. 在 dev/binderfs 上挂载私有 binderfs 实例；
 4. 仅当启用了 PID 命名空间时挂载 proc（否则必须跳过，避免宿主机进程
    视图泄漏进沙箱）。

顺序是硬性约束：binderfs 依赖 dev 上的 tmpfs，chroot 依赖所有挂载完成。
Builder.Validate 会在 fork 之前拒绝违反顺序的计划，把"路径不存在"一类
的晚期错误提前变成可诊断的计划错误。

计划在父进程中被编译为 C 风格的系统调用参数（SyscallParams），由 clone
出的子进程在新挂载命名空间内依次执行，参见 pkg/forkexec。

使用示例：

	b := mount.NewAndroidBuilder("/path/to/payload").
	    WithProc() // 仅在有 PID 命名空间时追加

	if err := b.Validate(); err != nil { ... }
	params, err := b.Build() // 转换为子进程可执行的参数
*/
package mount
