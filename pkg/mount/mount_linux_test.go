package mount

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestClassifySourceMissing(t *testing.T) {
	m := &Mount{Source: "/no/such/payload", Target: "system", Flags: syscall.MS_BIND}
	err := classify(m, syscall.ENOENT)
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("classify(ENOENT) = %v", err)
	}
}

func TestClassifyPermission(t *testing.T) {
	m := &Mount{Source: "proc", Target: "proc", FsType: "proc"}
	for _, errno := range []syscall.Errno{syscall.EPERM, syscall.EACCES} {
		if err := classify(m, errno); !errors.Is(err, ErrPermission) {
			t.Errorf("classify(%v) = %v", errno, err)
		}
	}
}

func TestClassifyFsUnsupported(t *testing.T) {
	m := &Mount{Source: "binder", Target: "dev/binderfs", FsType: "binder"}
	if err := classify(m, syscall.ENODEV); !errors.Is(err, ErrFsUnsupported) {
		t.Errorf("classify(ENODEV) = %v", err)
	}

	// 绑定挂载的 EINVAL 不是文件系统类型问题
	b := &Mount{Source: "/payload", Target: "system", Flags: syscall.MS_BIND}
	if err := classify(b, syscall.EINVAL); errors.Is(err, ErrFsUnsupported) {
		t.Errorf("绑定挂载的 EINVAL 不应归类为 ErrFsUnsupported: %v", err)
	}
}

func TestMountTmpfs(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("挂载 tmpfs 需要 root")
	}
	target := filepath.Join(t.TempDir(), "dev")
	m := &Mount{Source: "tmpfs", Target: target, FsType: "tmpfs", Data: "mode=755"}
	if err := m.Mount(); err != nil {
		t.Fatal(err)
	}
	defer syscall.Unmount(target, syscall.MNT_DETACH)

	if err := os.WriteFile(filepath.Join(target, "probe"), []byte("x"), 0644); err != nil {
		t.Errorf("tmpfs 应当可写: %v", err)
	}
}

func TestMountString(t *testing.T) {
	cases := map[string]Mount{
		"bind[/payload:system:ro]": {Source: "/payload", Target: "system", Flags: syscall.MS_BIND | syscall.MS_RDONLY},
		"tmpfs[dev]":               {Source: "tmpfs", Target: "dev", FsType: "tmpfs"},
		"binderfs[dev/binderfs]":   {Source: "binder", Target: "dev/binderfs", FsType: "binder"},
	}
	for want, m := range cases {
		if got := m.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
