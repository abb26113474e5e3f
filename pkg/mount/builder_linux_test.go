package mount

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestAndroidBuilderOrder(t *testing.T) {
	b := NewAndroidBuilder("/payload/root")
	if err := b.Validate(); err != nil {
		t.Fatalf("default android plan should validate: %v", err)
	}
	if len(b.Mounts) != 4 {
		t.Fatalf("expected 4 mounts, got %d", len(b.Mounts))
	}
	first := b.Mounts[0]
	if !first.IsBindMount() || first.Target != SystemDir || !first.IsReadOnly() {
		t.Errorf("first mount should be readonly system bind, got %v", first)
	}
	last := b.Mounts[3]
	if !last.IsBinderfs() || last.Target != BinderfsDir {
		t.Errorf("last mount should be binderfs at %s, got %v", BinderfsDir, last)
	}
}

func TestValidateRejectsBinderBeforeSystem(t *testing.T) {
	b := NewBuilder().
		WithTmpfs("dev", "mode=755").
		WithBinderfs(BinderfsDir).
		WithBind("/payload/root", SystemDir, true)
	err := b.Validate()
	if !errors.Is(err, ErrBinderBeforeSystem) {
		t.Fatalf("expected ErrBinderBeforeSystem, got %v", err)
	}
}

func TestValidateRejectsBinderWithoutDevTmpfs(t *testing.T) {
	b := NewBuilder().
		WithBind("/payload/root", SystemDir, true).
		WithBinderfs(BinderfsDir)
	err := b.Validate()
	if !errors.Is(err, ErrBinderWithoutTmpDev) {
		t.Fatalf("expected ErrBinderWithoutTmpDev, got %v", err)
	}
}

func TestValidateRequiresSystemMount(t *testing.T) {
	b := NewBuilder().WithTmpfs("tmp", "")
	if err := b.Validate(); !errors.Is(err, ErrNoSystemMount) {
		t.Fatalf("expected ErrNoSystemMount, got %v", err)
	}
}

func TestFilterNotExistDropsMissingBind(t *testing.T) {
	payload := t.TempDir()
	b := NewAndroidBuilder(payload).
		WithBind(filepath.Join(payload, "apex"), "apex", true)
	b.FilterNotExist()

	// payload 本身存在，可选的 apex 目录不存在
	for _, m := range b.Mounts {
		if m.Target == "apex" {
			t.Error("源不存在的可选绑定应被剔除")
		}
	}
	if err := b.Validate(); err != nil {
		t.Errorf("剔除后计划应仍然合法: %v", err)
	}
	if b.Mounts[0].Target != SystemDir {
		t.Errorf("system 绑定不应被剔除: %v", b.Mounts[0])
	}
}

func TestBuilderString(t *testing.T) {
	s := NewAndroidBuilder("/p").String()
	for _, want := range []string{"bind[/p:system:ro]", "tmpfs[dev]", "tmpfs[tmp]", "binderfs[dev/binderfs]"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestPathPrefix(t *testing.T) {
	got := pathPrefix("dev/binderfs")
	if len(got) != 2 || got[0] != "dev" || got[1] != "dev/binderfs" {
		t.Fatalf("pathPrefix = %v", got)
	}
}

func TestWithProcFlags(t *testing.T) {
	b := NewBuilder().WithProc()
	m := b.Mounts[0]
	if m.FsType != "proc" || !m.IsReadOnly() {
		t.Fatalf("WithProc should add readonly proc, got %v", m)
	}
}
