package workflow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/finflow/types"
)

func newTestSchema(t *testing.T) *StateSchema {
	t.Helper()
	schema, err := NewStateSchema(
		StringField("user_question", ""),
		StringField("news_result", "assets/news/news_article.md"),
		Field("sources", []string(nil), AppendReducer[string]()),
		Field("attempts", 0, func(cur, upd int) int { return cur + upd }),
	)
	require.NoError(t, err)
	return schema
}

func TestState_DefaultsAndInitial(t *testing.T) {
	st, err := NewState(newTestSchema(t), map[string]any{"user_question": "tesla price"})
	require.NoError(t, err)

	assert.Equal(t, "tesla price", st.GetString("user_question"))
	assert.Equal(t, "assets/news/news_article.md", st.GetString("news_result"))

	n, err := Value[int](st, "attempts")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestState_RejectsUndeclaredAndMistyped(t *testing.T) {
	schema := newTestSchema(t)

	_, err := NewState(schema, map[string]any{"final_report": "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	_, err = NewState(schema, map[string]any{"attempts": "three"})
	require.Error(t, err)

	st, err := NewState(schema, nil)
	require.NoError(t, err)
	assert.Error(t, st.Set("unknown", "v"))
	assert.Error(t, st.Set("user_question", 42))

	// A rejected batch leaves every field untouched.
	err = st.Update(map[string]any{"user_question": "q", "attempts": "bad"})
	require.Error(t, err)
	assert.Equal(t, "", st.GetString("user_question"))
	assert.Equal(t, uint64(0), st.Version("user_question"))
}

func TestState_ReducersAndVersions(t *testing.T) {
	st, err := NewState(newTestSchema(t), nil)
	require.NoError(t, err)

	require.NoError(t, st.Set("sources", []string{"a"}))
	require.NoError(t, st.Set("sources", []string{"b", "c"}))
	require.NoError(t, st.Set("news_result", "other.md"))

	sources, err := Value[[]string](st, "sources")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, sources)
	assert.Equal(t, uint64(2), st.Version("sources"))
	assert.Equal(t, "other.md", st.Snapshot()["news_result"])
}

func TestState_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	st, err := NewState(newTestSchema(t), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Set("attempts", 1)
		}()
	}
	wg.Wait()

	n, err := Value[int](st, "attempts")
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, uint64(50), st.Version("attempts"))
}

func TestValue_TypeMismatch(t *testing.T) {
	st, err := NewState(newTestSchema(t), nil)
	require.NoError(t, err)

	_, err = Value[int](st, "user_question")
	assert.Error(t, err)
	_, err = Value[int](st, "nope")
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}
