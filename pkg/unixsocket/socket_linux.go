// Package unixsocket 封装 Linux unix socket 的带外消息收发，
// 支持传递文件描述符和用户凭证
//
// 沙箱内的服务注册表通过它暴露查询端点：服务端在前缀的
// data/.rundroid 目录下监听（dev 是子进程私有的 tmpfs，
// 宿主机侧创建的 socket 放在那里沙箱内看不到），沙箱内的
// 客户端通过 /data/.rundroid 下的同一路径连接
package unixsocket

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"syscall"
)

// OOB 缓冲区默认为一个内存页，足够容纳描述符和凭证
const oobSize = 4 << 10 // 4kb

// Socket 封装一条 unix socket 连接和它的 OOB 缓冲区
type Socket struct {
	*net.UnixConn
	sendBuff []byte
	recvBuff []byte
}

// Msg 是 unix socket 的带外消息
type Msg struct {
	Fds  []int          // 传递的文件描述符
	Cred *syscall.Ucred // 对端的用户凭证
}

func newSocket(conn *net.UnixConn) *Socket {
	return &Socket{
		UnixConn: conn,
		sendBuff: make([]byte, oobSize),
		recvBuff: make([]byte, oobSize),
	}
}

// NewSocket 用现有的 unix socket 描述符创建 Socket
// 描述符会被设置为非阻塞并带上 close-on-exec 标志
// 需要 SOCK_SEQPACKET 类型以保证消息边界
func NewSocket(fd int) (*Socket, error) {
	syscall.SetNonblock(fd, true)
	syscall.CloseOnExec(fd)

	file := os.NewFile(uintptr(fd), "unix-socket")
	if file == nil {
		return nil, fmt.Errorf("NewSocket: %d is not a valid fd", fd)
	}
	defer file.Close()

	conn, err := net.FileConn(file)
	if err != nil {
		return nil, err
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("NewSocket: %d is not a valid unix socket connection", fd)
	}
	return newSocket(unixConn), nil
}

// NewSocketPair 创建一对相连的 SOCK_SEQPACKET socket
func NewSocketPair() (*Socket, *Socket, error) {
	fd, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_SEQPACKET|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("NewSocketPair: failed to call socketpair %v", err)
	}

	ins, err := NewSocket(fd[0])
	if err != nil {
		syscall.Close(fd[0])
		syscall.Close(fd[1])
		return nil, nil, fmt.Errorf("NewSocketPair: failed to call NewSocket on sender %v", err)
	}

	outs, err := NewSocket(fd[1])
	if err != nil {
		ins.Close()
		syscall.Close(fd[1])
		return nil, nil, fmt.Errorf("NewSocketPair: failed to call NewSocket receiver %v", err)
	}

	return ins, outs, nil
}

// Listen 在文件系统路径上创建 SOCK_SEQPACKET 监听端点
// 残留的 socket 文件会被清理，路径存在且被占用时返回错误
func Listen(path string) (*net.UnixListener, error) {
	if err := removeStale(path); err != nil {
		return nil, err
	}
	addr := &net.UnixAddr{Name: path, Net: "unixpacket"}
	return net.ListenUnix("unixpacket", addr)
}

// Accept 接受一条连接并包装为 Socket
func Accept(l *net.UnixListener) (*Socket, error) {
	conn, err := l.AcceptUnix()
	if err != nil {
		return nil, err
	}
	return newSocket(conn), nil
}

// Dial 连接到文件系统路径上的监听端点
func Dial(path string) (*Socket, error) {
	addr := &net.UnixAddr{Name: path, Net: "unixpacket"}
	conn, err := net.DialUnix("unixpacket", nil, addr)
	if err != nil {
		return nil, err
	}
	return newSocket(conn), nil
}

// removeStale 删除残留的 socket 文件
// 只删除确实是 socket 的路径，普通文件原样保留并报错
func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("unixsocket: %s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// SetPassCred 设置 SO_PASSCRED 选项，启用后消息附带对端凭证
func (s *Socket) SetPassCred(option int) error {
	sysconn, err := s.SyscallConn()
	if err != nil {
		return err
	}
	return sysconn.Control(func(fd uintptr) {
		syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_PASSCRED, option)
	})
}

// SendMsg 发送数据和 OOB 消息
func (s *Socket) SendMsg(b []byte, m Msg) error {
	oob := bytes.NewBuffer(s.sendBuff[:0])
	if len(m.Fds) > 0 {
		oob.Write(syscall.UnixRights(m.Fds...))
	}
	if m.Cred != nil {
		oob.Write(syscall.UnixCredentials(m.Cred))
	}

	_, _, err := s.WriteMsgUnix(b, oob.Bytes(), nil)
	if err != nil {
		return err
	}
	return nil
}

// RecvMsg 接收数据并解析 OOB 消息
func (s *Socket) RecvMsg(b []byte) (int, Msg, error) {
	var msg Msg
	n, oobn, _, _, err := s.ReadMsgUnix(b, s.recvBuff)
	if err != nil {
		return 0, msg, err
	}
	msgs, err := syscall.ParseSocketControlMessage(s.recvBuff[:oobn])
	if err != nil {
		return 0, msg, err
	}
	msg, err = parseMsg(msgs)
	if err != nil {
		return 0, msg, err
	}
	return n, msg, nil
}

// parseMsg 解析控制消息中的凭证（SCM_CREDENTIALS）
// 和文件描述符（SCM_RIGHTS）
func parseMsg(msgs []syscall.SocketControlMessage) (msg Msg, err error) {
	// 出错时关闭已解析出的描述符，避免泄漏
	defer func() {
		if err != nil {
			for _, f := range msg.Fds {
				syscall.Close(f)
			}
			msg.Fds = nil
		}
	}()

	for _, m := range msgs {
		if m.Header.Level != syscall.SOL_SOCKET {
			continue
		}

		switch m.Header.Type {
		case syscall.SCM_CREDENTIALS:
			cred, err := syscall.ParseUnixCredentials(&m)
			if err != nil {
				return msg, err
			}
			msg.Cred = cred

		case syscall.SCM_RIGHTS:
			fds, err := syscall.ParseUnixRights(&m)
			if err != nil {
				return msg, err
			}
			msg.Fds = fds
		}
	}
	return msg, nil
}
