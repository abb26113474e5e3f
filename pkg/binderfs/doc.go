/*
Package binderfs 管理私有 Binder IPC 实例的设备分配。

binderfs 是内核提供的文件系统，每个挂载实例拥有独立的一组 Binder 设备，
实例之间互不可见。每次应用启动都挂载一个新实例（见 pkg/mount 的
WithBinderfs），因此两个并发沙箱永远观察不到彼此的 Binder 流量。

挂载之后实例内只有控制文件 binder-control，常规设备节点要通过对它执行
BINDER_CTL_ADD ioctl 逐个分配。分配发生在 clone 出的子进程里（必须在新
命名空间内），而子进程处于不能调用 Go 函数的阶段，所以本包沿用挂载计划
的做法：父进程把设备名、控制文件路径和 /dev 符号链接预编译为 C 风格的
SyscallParams，子进程只执行 openat/ioctl/symlinkat 原始系统调用。

Provision 提供了一个普通进程内可直接调用的版本，供能力探测和测试使用。
*/
package binderfs
