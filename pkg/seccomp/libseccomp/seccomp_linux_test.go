package libseccomp

import (
	"testing"

	seccompbpf "github.com/elastic/go-seccomp-bpf"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name    string
		builder Builder
		wantErr bool
	}{
		{
			name:    "android policy",
			builder: AndroidPolicy(),
			wantErr: false,
		},
		{
			name: "empty denylist",
			builder: Builder{
				Default: ActionAllow,
			},
			wantErr: false,
		},
		{
			name: "invalid syscall",
			builder: Builder{
				Denied:  []string{"invalid_syscall"},
				Default: ActionAllow,
			},
			wantErr: true,
		},
		{
			name: "duplicate syscalls",
			builder: Builder{
				Denied:  []string{"mount", "mount"},
				Default: ActionAllow,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := tt.builder.Build()
			if (err != nil) != tt.wantErr {
				t.Errorf("Builder.Build() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && filter == nil {
				t.Error("Builder.Build() returned nil filter without error")
			}
		})
	}
}

func TestAndroidPolicyDeniesMount(t *testing.T) {
	p := AndroidPolicy()
	found := false
	for _, name := range p.Denied {
		if name == "mount" {
			found = true
			break
		}
	}
	if !found {
		t.Error("默认策略应当拒绝 mount")
	}
	if p.Default != ActionAllow {
		t.Errorf("默认动作 = %v，期望 ActionAllow", p.Default)
	}
}

func TestToSeccompAction(t *testing.T) {
	tests := []struct {
		name string
		act  Action
		want seccompbpf.Action
	}{
		{
			name: "allow",
			act:  ActionAllow,
			want: seccompbpf.ActionAllow,
		},
		{
			name: "errno",
			act:  ActionErrno,
			want: seccompbpf.ActionErrno,
		},
		{
			name: "kill",
			act:  Action(99), // 无效动作
			want: seccompbpf.ActionKillProcess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToSeccompAction(tt.act); got != tt.want {
				t.Errorf("ToSeccompAction() = %v, want %v", got, tt.want)
			}
		})
	}
}

// BenchmarkBuildFilter 测试过滤器构建的性能
func BenchmarkBuildFilter(b *testing.B) {
	builder := AndroidPolicy()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := builder.Build()
		if err != nil {
			b.Fatal(err)
		}
	}
}
