package forkexec

import (
	"syscall"
	"testing"
)

func TestDefaultMapping(t *testing.T) {
	if got := DefaultMapping(1000); got != "0 1000 1" {
		t.Errorf("DefaultMapping(1000) = %q, want %q", got, "0 1000 1")
	}
	if got := DefaultMapping(0); got != "0 0 1" {
		t.Errorf("DefaultMapping(0) = %q, want %q", got, "0 0 1")
	}
}

func TestFormatIDMappings(t *testing.T) {
	got := formatIDMappings([]syscall.SysProcIDMap{
		{ContainerID: 0, HostID: 1000, Size: 1},
		{ContainerID: 1, HostID: 100000, Size: 65536},
	})
	want := "0 1000 1\n1 100000 65536\n"
	if string(got) != want {
		t.Errorf("formatIDMappings = %q, want %q", got, want)
	}
}

func TestErrorLocationString(t *testing.T) {
	cases := map[ErrorLocation]string{
		LocClone:       "clone",
		LocMount:       "mount",
		LocBinderIoctl: "binder(ioctl)",
		LocChroot:      "chroot",
		LocExecve:      "execve",
		0:              "unknown",
	}
	for loc, want := range cases {
		if got := loc.String(); got != want {
			t.Errorf("ErrorLocation(%d).String() = %q, want %q", loc, got, want)
		}
	}
}

func TestChildErrorMessage(t *testing.T) {
	e := ChildError{Err: syscall.ENOENT, Location: LocMount, Index: 2}
	if got := e.Error(); got != "mount(2): no such file or directory" {
		t.Errorf("ChildError.Error() = %q", got)
	}
	e = ChildError{Err: syscall.ENOENT, Location: LocExecve}
	if got := e.Error(); got != "execve: no such file or directory" {
		t.Errorf("ChildError.Error() = %q", got)
	}
}
