package services

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/zqzqsb/rundroid/pkg/unixsocket"
)

const (
	// SocketDir 是注册表端点在前缀内的目录（相对前缀根）
	// data 子树不是独立挂载，宿主机侧创建的 socket 在沙箱内
	// 原样可见，沙箱内路径为 /data/.rundroid/servicemanager
	SocketDir = "data/.rundroid"
	// SocketName 是端点文件名，沿用 Android 的 servicemanager 惯例
	SocketName = "servicemanager"

	// InSandboxSocket 是端点在沙箱视图内的路径
	InSandboxSocket = "/data/.rundroid/servicemanager"

	// maxFrame 是单条请求帧的上限
	maxFrame = 64 << 10
)

// SocketPath 返回端点在宿主机侧的路径
func SocketPath(prefixRoot string) string {
	return filepath.Join(prefixRoot, filepath.FromSlash(SocketDir), SocketName)
}

// Server 在前缀内的 unix socket 上暴露注册表
// 帧格式：请求为 "服务名 方法名[ 负载]"，应答为处理函数的原始字节
type Server struct {
	registry *Registry
	logger   *zap.Logger

	listener *net.UnixListener
	wg       sync.WaitGroup
	closed   chan struct{}
}

// NewServer 创建注册表服务端
func NewServer(registry *Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry: registry,
		logger:   logger,
		closed:   make(chan struct{}),
	}
}

// Start 在前缀内创建端点并开始接受连接
// 必须在运行时 execve 之前调用，保证启动早期的查询有人应答
func (s *Server) Start(prefixRoot string) error {
	path := SocketPath(prefixRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	l, err := unixsocket.Listen(path)
	if err != nil {
		return err
	}
	// 沙箱内身份映射后仍要能连上端点
	if err := os.Chmod(path, 0666); err != nil {
		l.Close()
		return err
	}
	s.listener = l

	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Info("服务注册表已就绪",
		zap.String("socket", path),
		zap.Strings("services", s.registry.Services()))
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := unixsocket.Accept(s.listener)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.logger.Warn("接受连接失败", zap.Error(err))
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn *unixsocket.Socket) {
	defer s.wg.Done()
	defer conn.Close()

	buf := make([]byte, maxFrame)
	for {
		n, _, err := conn.RecvMsg(buf)
		if err != nil || n == 0 {
			return
		}
		resp := s.handleFrame(buf[:n])
		if err := conn.SendMsg(resp, unixsocket.Msg{}); err != nil {
			return
		}
	}
}

// handleFrame 解析请求帧并分发
// 格式不合法的帧同样返回默认应答，见 Registry.Dispatch 的约定
func (s *Server) handleFrame(frame []byte) []byte {
	service, rest, ok := cutSpace(frame)
	if !ok {
		return respOK
	}
	method, payload, _ := cutSpace(rest)
	return s.registry.Dispatch(string(service), string(method), payload)
}

func cutSpace(b []byte) (before, after []byte, found bool) {
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		return b[:i], b[i+1:], true
	}
	return b, nil, len(b) > 0
}

// Close 停止服务端并等待连接处理完成
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	close(s.closed)
	err := s.listener.Close()
	s.wg.Wait()
	return err
}
