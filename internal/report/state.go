package report

import (
	"github.com/BaSui01/finflow/workflow"
)

// Flow state fields.
const (
	FieldUserQuestion     = "user_question"
	FieldPresentTime      = "present_time"
	FieldVisualizerResult = "visualizer_result"
	FieldNewsResult       = "news_result"
	FieldFinalReport      = "final_report"
)

// Default locators used until the producing crews overwrite them.
const (
	DefaultVisualizerResult = "images/visualization_report.md"
	DefaultNewsResult       = "news/news_article.md"
	DefaultQuestion         = "current price of tesla stock"
	PresentTimeLayout       = "2006-01-02 15:04:05"
)

// ReportState is a typed view of the flow state.
type ReportState struct {
	UserQuestion     string `json:"user_question"`
	PresentTime      string `json:"present_time"`
	VisualizerResult string `json:"visualizer_result"`
	NewsResult       string `json:"news_result"`
	FinalReport      string `json:"final_report"`
}

// StateFields declares the report flow state with its defaults.
func StateFields() []workflow.FieldSpec {
	return []workflow.FieldSpec{
		workflow.StringField(FieldUserQuestion, ""),
		workflow.StringField(FieldPresentTime, ""),
		workflow.StringField(FieldVisualizerResult, DefaultVisualizerResult),
		workflow.StringField(FieldNewsResult, DefaultNewsResult),
		workflow.StringField(FieldFinalReport, ""),
	}
}

// StateOf reads the typed view from a live state.
func StateOf(s *workflow.State) ReportState {
	return ReportState{
		UserQuestion:     s.GetString(FieldUserQuestion),
		PresentTime:      s.GetString(FieldPresentTime),
		VisualizerResult: s.GetString(FieldVisualizerResult),
		NewsResult:       s.GetString(FieldNewsResult),
		FinalReport:      s.GetString(FieldFinalReport),
	}
}

// StateFromSnapshot reads the typed view from FlowResult.State.
func StateFromSnapshot(snapshot map[string]any) ReportState {
	str := func(k string) string {
		v, _ := snapshot[k].(string)
		return v
	}
	return ReportState{
		UserQuestion:     str(FieldUserQuestion),
		PresentTime:      str(FieldPresentTime),
		VisualizerResult: str(FieldVisualizerResult),
		NewsResult:       str(FieldNewsResult),
		FinalReport:      str(FieldFinalReport),
	}
}
