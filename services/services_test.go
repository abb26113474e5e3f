package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zqzqsb/rundroid/pkg/unixsocket"
)

func TestRegistryDispatch(t *testing.T) {
	r := Default(nil)

	resp := r.Dispatch("activity", "checkPermission", nil)
	assert.Equal(t, "0", string(resp), "权限检查应返回 PERMISSION_GRANTED")

	resp = r.Dispatch("package", "getPackageInfo", []byte("com.example.app"))
	assert.Equal(t, "{}", string(resp))
}

func TestRegistryUnknownNeverFails(t *testing.T) {
	r := Default(nil)

	resp := r.Dispatch("window", "unknownMethod", nil)
	assert.NotEmpty(t, resp, "未注册的调用也必须有应答")
}

func TestRegistryServices(t *testing.T) {
	r := Default(nil)
	names := r.Services()
	assert.Contains(t, names, "activity")
	assert.Contains(t, names, "package")
}

func TestRegistryRegisterOverride(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("activity", "checkPermission", func([]byte) []byte { return []byte("-1") })
	resp := r.Dispatch("activity", "checkPermission", nil)
	assert.Equal(t, "-1", string(resp))
}

func TestServerRoundTrip(t *testing.T) {
	prefixRoot := t.TempDir()
	srv := NewServer(Default(nil), nil)
	require.NoError(t, srv.Start(prefixRoot))
	defer srv.Close()

	conn, err := unixsocket.Dial(SocketPath(prefixRoot))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.SendMsg([]byte("activity checkPermission android.permission.INTERNET"), unixsocket.Msg{}))

	buf := make([]byte, 256)
	n, _, err := conn.RecvMsg(buf)
	require.NoError(t, err)
	assert.Equal(t, "0", string(buf[:n]))
}

func TestServerMalformedFrame(t *testing.T) {
	prefixRoot := t.TempDir()
	srv := NewServer(Default(nil), nil)
	require.NoError(t, srv.Start(prefixRoot))
	defer srv.Close()

	conn, err := unixsocket.Dial(SocketPath(prefixRoot))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.SendMsg([]byte("activity"), unixsocket.Msg{}))

	buf := make([]byte, 256)
	n, _, err := conn.RecvMsg(buf)
	require.NoError(t, err)
	assert.NotZero(t, n, "格式不完整的帧也应有应答")
}

func TestSocketPathLayout(t *testing.T) {
	got := SocketPath("/var/lib/rundroid/prefixes/com.example.app")
	want := filepath.Join("/var/lib/rundroid/prefixes/com.example.app", "data/.rundroid", "servicemanager")
	assert.Equal(t, want, got)
	assert.Equal(t, "/data/.rundroid/servicemanager", InSandboxSocket)
}
