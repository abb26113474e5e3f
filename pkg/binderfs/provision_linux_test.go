package binderfs

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// hostHasBinderfs 检查内核是否注册了 binder 文件系统
func hostHasBinderfs(t *testing.T) bool {
	t.Helper()
	f, err := os.Open("/proc/filesystems")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) > 0 && fields[len(fields)-1] == "binder" {
			return true
		}
	}
	return false
}

func TestProvisionAllocatesDevices(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("挂载 binderfs 需要 root")
	}
	if !hostHasBinderfs(t) {
		t.Skip("内核未启用 CONFIG_ANDROID_BINDERFS")
	}

	mp := filepath.Join(t.TempDir(), "binderfs")
	in, err := Provision(mp, ConventionalDevices)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Unmount()

	for _, name := range ConventionalDevices {
		fi, err := os.Stat(in.DevicePath(name))
		if err != nil {
			t.Errorf("设备 %s 未出现: %v", name, err)
			continue
		}
		if fi.Mode()&os.ModeCharDevice == 0 {
			t.Errorf("%s 不是字符设备", name)
		}
	}
}

func TestProvisionCollision(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("挂载 binderfs 需要 root")
	}
	if !hostHasBinderfs(t) {
		t.Skip("内核未启用 CONFIG_ANDROID_BINDERFS")
	}

	mp := filepath.Join(t.TempDir(), "binderfs")
	in, err := Provision(mp, []string{"binder", "binder"})
	if in != nil {
		defer in.Unmount()
	}
	if !errors.Is(err, ErrNameCollision) {
		t.Fatalf("重复设备名应报 ErrNameCollision，得到 %v", err)
	}
}
