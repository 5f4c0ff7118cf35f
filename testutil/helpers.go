// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	store := testutil.NewMemStore(t)
//	testutil.AssertArtifact(t, store, "report.md", "# Report")
//	testutil.AssertErrorCode(t, err, types.ErrDependencyNotMet)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 📦 产物存储辅助
// =============================================================================

// NewMemStore 返回测试结束时自动关闭的 mem:// 产物存储
func NewMemStore(t *testing.T) *artifacts.BlobStore {
	t.Helper()
	store, err := artifacts.OpenBlobStore(context.Background(), "mem://", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// ReadArtifact 读取已提交的产物内容，不存在时测试失败
func ReadArtifact(t *testing.T, store artifacts.Store, locator string) (string, *artifacts.Ref) {
	t.Helper()
	data, ref, err := store.Read(context.Background(), locator)
	require.NoError(t, err, "artifact %s", locator)
	return string(data), ref
}

// AssertArtifact 断言产物存在且包含 substr
func AssertArtifact(t *testing.T, store artifacts.Store, locator, substr string) {
	t.Helper()
	data, _ := ReadArtifact(t, store, locator)
	assert.Contains(t, data, substr)
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertErrorCode 断言 err 链中包含指定错误码的 *types.Error
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, types.GetErrorCode(err), "error: %v", err)
}

// AssertJSONEqual 断言两个值序列化后的 JSON 相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()
	assert.JSONEq(t, MustJSON(expected), MustJSON(actual))
}

// =============================================================================
// 🔧 数据辅助
// =============================================================================

// MustJSON 序列化为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
