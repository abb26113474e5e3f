package cgroup

import (
	"path"
	"testing"
)

func TestControllersNames(t *testing.T) {
	ct := &Controllers{CPU: true, Memory: true, Pids: true}
	names := ct.Names()
	want := []string{"cpu", "memory", "pids"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestControllersContains(t *testing.T) {
	all := &Controllers{CPU: true, CPUSet: true, Memory: true, Pids: true}
	some := &Controllers{Memory: true}
	if !all.Contains(some) {
		t.Error("全集应当覆盖子集")
	}
	if some.Contains(all) {
		t.Error("子集不应覆盖全集")
	}
}

func TestParseControllers(t *testing.T) {
	ct := parseControllers("cpuset cpu io memory hugetlb pids rdma misc")
	if !ct.CPU || !ct.CPUSet || !ct.Memory || !ct.Pids {
		t.Errorf("parseControllers = %v", ct)
	}
}

func TestGroupLifecycle(t *testing.T) {
	if !Available() {
		t.Skip("系统未以 v2 挂载 cgroup")
	}
	cg, err := New("rundroid-test/lifecycle", DefaultControllers())
	if err != nil {
		t.Skipf("创建 cgroup 需要委派权限: %v", err)
	}
	defer remove(path.Join(basePath, "rundroid-test"))
	defer cg.Destroy()

	// stop 流程在另一个进程里按路径重新打开节点
	opened, err := OpenExisting("rundroid-test/lifecycle", DefaultControllers())
	if err != nil {
		t.Fatal(err)
	}
	if !opened.Existing() {
		t.Error("OpenExisting 打开的节点应标记为已有")
	}
	procs, err := opened.Processes()
	if err != nil {
		t.Fatal(err)
	}
	if len(procs) != 0 {
		t.Errorf("新节点不应包含进程: %v", procs)
	}
	if err := opened.Remove(); err != nil {
		t.Errorf("Remove: %v", err)
	}
}

func TestNewRequiresV2(t *testing.T) {
	if Available() {
		t.Skip("系统以 v2 挂载 cgroup，跳过降级路径")
	}
	if _, err := New("rundroid-test", DefaultControllers()); err != ErrV2Unavailable {
		t.Errorf("err = %v, want ErrV2Unavailable", err)
	}
}
