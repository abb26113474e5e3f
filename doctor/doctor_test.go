package doctor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDoesNotPanic(t *testing.T) {
	caps := Detect()
	// 探测结果依赖宿主机，这里只验证报告的结构
	report := caps.Report()
	assert.True(t, strings.Contains(report, "user namespaces"))
	assert.True(t, strings.Contains(report, "binderfs"))
	assert.True(t, strings.Contains(report, "subuid range"))
}

func TestSandboxable(t *testing.T) {
	c := Capabilities{UserNamespaces: true, Binderfs: true}
	assert.True(t, c.Sandboxable())

	c.Binderfs = false
	assert.False(t, c.Sandboxable(), "没有 binderfs 不构成可用沙箱")

	c = Capabilities{Binderfs: true}
	assert.False(t, c.Sandboxable(), "没有用户命名空间不构成可用沙箱")
}
