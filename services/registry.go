// Package services 实现最小化的系统服务注册表
//
// Android 运行时在启动早期会做少量服务查询（权限检查、服务发现）。
// 没有真正的 system_server 时这些查询会让运行时直接退出，所以
// 注册表按 (服务名, 方法名) 分发到处理函数，返回结构上合法的
// 预置应答。这是一个门面，唯一的契约是"别让运行时在启动时崩溃"
package services

import (
	"sync"

	"go.uber.org/zap"
)

// Handler 为一次服务调用产生应答
// 处理函数必须是纯函数：不访问沙箱状态，只返回预置内容
type Handler func(payload []byte) []byte

type key struct {
	service string
	method  string
}

// Registry 是 (服务, 方法) 到处理函数的分发表
type Registry struct {
	mu       sync.RWMutex
	handlers map[key]Handler
	logger   *zap.Logger
}

// NewRegistry 创建空的注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[key]Handler),
		logger:   logger,
	}
}

// Register 注册一个方法的处理函数
func (r *Registry) Register(service, method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key{service, method}] = h
}

// Dispatch 按 (服务, 方法) 分发调用
// 未注册的调用返回肯定的空应答而不是错误：对运行时来说
// "查无此服务"和"服务崩溃"都可能触发中止，宁可多答应
func (r *Registry) Dispatch(service, method string, payload []byte) []byte {
	r.mu.RLock()
	h, ok := r.handlers[key{service, method}]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("未注册的服务调用，返回默认应答",
			zap.String("service", service),
			zap.String("method", method))
		return respOK
	}
	return h(payload)
}

// Services 返回已注册的服务名集合，用于诊断输出
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var names []string
	for k := range r.handlers {
		if _, ok := seen[k.service]; ok {
			continue
		}
		seen[k.service] = struct{}{}
		names = append(names, k.service)
	}
	return names
}

// 预置应答。运行时只检查结构，不检查语义
var (
	respOK      = []byte("ok")
	respGranted = []byte("0")  // PERMISSION_GRANTED
	respTrue    = []byte("1")
	respEmpty   = []byte("{}")
)

// Default 返回带 activity 和 package 服务桩的注册表
func Default(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)

	// activity 服务：运行时启动时的权限检查和进程注册
	r.Register("activity", "checkPermission", func([]byte) []byte { return respGranted })
	r.Register("activity", "attachApplication", func([]byte) []byte { return respOK })
	r.Register("activity", "getProviderMimeType", func([]byte) []byte { return respEmpty })

	// package 服务：包信息和权限查询
	r.Register("package", "checkPermission", func([]byte) []byte { return respGranted })
	r.Register("package", "isProtectedBroadcast", func([]byte) []byte { return respTrue })
	r.Register("package", "getPackageInfo", func([]byte) []byte { return respEmpty })

	return r
}
