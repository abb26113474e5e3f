/*
Package forkexec 实现沙箱子进程的创建：clone 出带新命名空间的单线程
子进程，在其中按序完成挂载、Binder 设备分配和根目录切换，最后 execve
Android 运行时入口。

命名空间的创建必须发生在一个刚刚 fork 出的单线程进程里——从多线程进程
unshare 用户命名空间会被内核拒绝，这是本包存在的根本原因。clone 之后的
子进程处于不能调用任何 Go 函数、不能分配内存的状态，因此所有参数
（挂载计划、binderfs 设备请求、环境变量、路径）都由父进程预编译为
C 风格指针，子进程只执行原始系统调用。

子进程内的执行顺序是硬性依赖链：

	命名空间生效 → uid/gid 映射同步 → 挂载计划 → binderfs 设备分配
	  → chroot → rlimit/seccomp → execve

父进程通过 socketpair 与子进程同步：先写入 uid/gid 映射完成的信号，
再接收子进程可能回传的 ChildError（带精确的失败位置），保证任何一步
失败都不会被包装成"启动成功"。
*/
package forkexec
