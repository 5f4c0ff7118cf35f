package crews

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/testutil/mocks"
	"github.com/BaSui01/finflow/tools"
	"github.com/BaSui01/finflow/types"
)

const agentsYAML = `
retrieve_news:
  role: Retrieve News
  goal: Find news about {user_question}
  backstory: You track markets.
  tools: [web_search, file_writer]
  allow_delegation: true
  max_iter: 4
ai_news_writer:
  role: News Writer
  goal: Write the article
  tools: [file_writer]
  max_retry_limit: 1
`

const tasksYAML = `
retrieve_news_task:
  description: Search news for {user_question}
  expected_output: JSON list of URLs
  agent: retrieve_news
  output_file: news/news_urls.json
ai_news_writer_task:
  description: Write the article
  expected_output: Markdown article
  agent: ai_news_writer
  output_file: news/news_article.md
  depends_on: [retrieve_news_task]
`

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(mocks.NewMockTool("web_search"), nil))
	require.NoError(t, reg.Register(tools.NewFileWriterTool("file_writer"), nil))
	return reg
}

func TestBuild_FromCatalog(t *testing.T) {
	catalog, err := config.ParseCatalog([]byte(agentsYAML), []byte(tasksYAML))
	require.NoError(t, err)

	c, err := Build(Spec{Name: "news", Tasks: []string{"ai_news_writer_task", "retrieve_news_task"}}, catalog, Deps{
		Backend:     mocks.NewMockBackend().WithResponse(`["https://a.example"]`),
		Tools:       testRegistry(t),
		Store:       memStore(t),
		RetryBudget: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"retrieve_news_task", "ai_news_writer_task"}, c.Plan())

	retrieve := c.workers["retrieve_news"].Config()
	assert.Equal(t, 4, retrieve.MaxIterations)
	assert.Equal(t, 3, retrieve.RetryBudget)
	assert.True(t, retrieve.AllowDelegation)
	assert.Equal(t, []string{"web_search", "file_writer"}, c.workers["retrieve_news"].Capabilities())
	assert.Equal(t, 1, c.workers["ai_news_writer"].Config().RetryBudget)

	res, err := c.Kickoff(context.Background(), map[string]string{"user_question": "tesla"})
	require.NoError(t, err)
	assert.Equal(t, "news/news_urls.json", res.Artifact("retrieve_news_task").Locator)
}

func TestBuild_Errors(t *testing.T) {
	catalog, err := config.ParseCatalog([]byte(agentsYAML), []byte(tasksYAML))
	require.NoError(t, err)
	deps := Deps{Backend: mocks.NewMockBackend(), Tools: testRegistry(t), Store: memStore(t)}

	tests := []struct {
		name string
		spec Spec
		deps Deps
		code types.ErrorCode
	}{
		{"missing task", Spec{Name: "x", Tasks: []string{"nope"}}, deps, types.ErrConfiguration},
		{"no tasks", Spec{Name: "x"}, deps, types.ErrGraphInvalid},
		{"unknown process", Spec{Name: "x", Process: "consensus", Tasks: []string{"retrieve_news_task"}}, deps, types.ErrConfiguration},
		{"missing manager", Spec{Name: "x", Process: ProcessHierarchical, Manager: "boss", Tasks: []string{"retrieve_news_task"}}, deps, types.ErrConfiguration},
		{"unregistered tool", Spec{Name: "x", Tasks: []string{"retrieve_news_task"}},
			Deps{Backend: mocks.NewMockBackend(), Tools: tools.NewRegistry(nil), Store: deps.Store}, types.ErrConfiguration},
		{"unknown dependency", Spec{Name: "x", Tasks: []string{"ai_news_writer_task"}}, deps, types.ErrGraphInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.spec, catalog, tt.deps)
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
		})
	}
}

func TestBuild_MissingAgent(t *testing.T) {
	catalog := config.NewCatalog()
	require.NoError(t, catalog.AddTask("orphan", config.TaskDefinition{Description: "d", Agent: "ghost", OutputFile: "o.md"}))

	_, err := Build(Spec{Name: "x", Tasks: []string{"orphan"}}, catalog, Deps{Backend: mocks.NewMockBackend(), Store: memStore(t)})
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestBuild_Hierarchical(t *testing.T) {
	catalog, err := config.ParseCatalog([]byte(agentsYAML), []byte(tasksYAML))
	require.NoError(t, err)

	c, err := Build(Spec{Name: "news", Process: ProcessHierarchical, Tasks: []string{"retrieve_news_task", "ai_news_writer_task"}}, catalog,
		Deps{Backend: mocks.NewMockBackend(), Tools: testRegistry(t), Store: memStore(t)})
	require.NoError(t, err)
	assert.Equal(t, ProcessHierarchical, c.process.Type())
}
