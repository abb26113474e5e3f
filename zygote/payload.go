package zygote

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PayloadError 表示 payload 缺少运行时必需的文件
// MissingPath 是沙箱视图内的路径（/system/...），不是宿主机路径，
// 这样报错直接指向 payload 缺了什么
type PayloadError struct {
	MissingPath string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload incomplete: missing %s", e.MissingPath)
}

// requiredFiles 是启动前必须存在的文件（相对 payload 根）
var requiredFiles = map[bool][]string{
	false: {"bin/app_process64", "lib64/libandroid_runtime.so"},
	true:  {"bin/app_process32", "lib/libandroid_runtime.so"},
}

// ValidatePayload 检查 payload 根目录是否包含本次启动需要的
// 入口二进制和核心库。payload 会被只读绑定到 /system，
// 所以相对路径 p 对应沙箱内的 /system/p
func (s *Spec) ValidatePayload(payloadRoot string) error {
	for _, rel := range requiredFiles[s.Use32Bit] {
		hostPath := filepath.Join(payloadRoot, filepath.FromSlash(rel))
		if _, err := os.Stat(hostPath); err != nil {
			if os.IsNotExist(err) {
				return &PayloadError{MissingPath: "/system/" + rel}
			}
			return err
		}
	}
	return nil
}

// InSandbox 把相对 payload 根的路径转换为沙箱视图内的路径
func InSandbox(rel string) string {
	return "/system/" + strings.TrimPrefix(rel, "/")
}
