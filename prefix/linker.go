package prefix

import (
	"os"
	"path/filepath"
)

// ldConfig 是写入 linkerconfig/ld.config.txt 的最小链接器配置
// Bionic 的动态链接器在没有配置时会退回默认搜索路径，但部分
// 运行时库显式读取这份文件，缺失会产生误导性的启动日志
const ldConfig = `# minimal linker namespace config
dir.system = /system/bin
dir.system = /system/xbin

[system]
namespace.default.isolated = false
namespace.default.search.paths = /system/lib64:/system/lib
namespace.default.permitted.paths = /system:/data:/apex
`

// ensureLinkerConfig 在骨架内生成链接器配置，已存在时不覆盖
func (p *Prefix) ensureLinkerConfig() error {
	path := filepath.Join(p.Root, "linkerconfig", "ld.config.txt")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(ldConfig), 0644)
}
