package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel implements model.BaseChatModel, recording the messages it
// was asked to generate from.
type fakeChatModel struct {
	response    string
	err         error
	calls       int
	gotMessages []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.gotMessages = msgs
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.response, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming not supported")
}

type fakeHistory struct {
	err         error
	gotQuestion string
	gotAnswer   string
	gotSources  []string
}

func (f *fakeHistory) Append(_ context.Context, question, answer string, sources []string) error {
	f.gotQuestion = question
	f.gotAnswer = answer
	f.gotSources = sources
	return f.err
}

func keywordResult(id, text string, score float64) SearchResult {
	return SearchResult{ChunkID: id, DocID: "doc", Text: text, Score: score}
}

func newTestAnswerer(t *testing.T, store *fakeStore, chat *fakeChatModel, cfg AnswererConfig) *Answerer {
	t.Helper()
	engine := newTestEngine(t, store, &fakeEmbedder{}, nil, Config{})
	a, err := NewAnswerer(engine, chat, cfg)
	if err != nil {
		t.Fatalf("NewAnswerer: %v", err)
	}
	return a
}

func Test_NewAnswerer_RejectsNilDependencies(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t, &fakeStore{}, &fakeEmbedder{}, nil, Config{})

	if _, err := NewAnswerer(nil, &fakeChatModel{}, AnswererConfig{}); !errors.Is(err, ErrConfig) {
		t.Errorf("nil engine: err = %v, want ErrConfig", err)
	}
	if _, err := NewAnswerer(engine, nil, AnswererConfig{}); !errors.Is(err, ErrConfig) {
		t.Errorf("nil chat model: err = %v, want ErrConfig", err)
	}
	if _, err := NewAnswerer(engine, &fakeChatModel{}, AnswererConfig{MaxContextTokens: -1}); !errors.Is(err, ErrConfig) {
		t.Errorf("negative budget: err = %v, want ErrConfig", err)
	}
}

func Test_Ask_AnswersFromRetrievedContext(t *testing.T) {
	t.Parallel()
	store := &fakeStore{kwResults: []SearchResult{
		keywordResult("doc:0000", "failover runs from the standby region", 1.0),
	}}
	chat := &fakeChatModel{response: "Failover runs from the standby region."}
	a := newTestAnswerer(t, store, chat, AnswererConfig{})

	ans, err := a.Ask(context.Background(), "where does failover run?", ModeKeyword)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Answer != "Failover runs from the standby region." {
		t.Errorf("Answer = %q", ans.Answer)
	}
	if ans.GenerationFailed {
		t.Error("GenerationFailed = true on success")
	}
	if len(ans.Sources) != 1 || ans.Sources[0].ChunkID != "doc:0000" {
		t.Errorf("Sources = %v", ans.Sources)
	}

	// The model sees the retrieved text as context and the question last.
	if len(chat.gotMessages) != 3 {
		t.Fatalf("model got %d messages, want 3", len(chat.gotMessages))
	}
	if !strings.Contains(chat.gotMessages[1].Content, "failover runs from the standby region") {
		t.Errorf("context block missing the retrieved chunk: %q", chat.gotMessages[1].Content)
	}
	last := chat.gotMessages[2]
	if last.Role != schema.User || last.Content != "where does failover run?" {
		t.Errorf("final message = %+v, want the user question", last)
	}
}

func Test_Ask_GenerationFailureReturnsMarkerNotError(t *testing.T) {
	t.Parallel()
	store := &fakeStore{kwResults: []SearchResult{
		keywordResult("doc:0000", "some context", 1.0),
	}}
	chat := &fakeChatModel{err: fmt.Errorf("model timeout")}
	a := newTestAnswerer(t, store, chat, AnswererConfig{})

	ans, err := a.Ask(context.Background(), "question", ModeKeyword)
	if err != nil {
		t.Fatalf("Ask returned error %v, want the failure marker instead", err)
	}
	if ans.Answer != FailureAnswer {
		t.Errorf("Answer = %q, want the failure marker", ans.Answer)
	}
	if !ans.GenerationFailed {
		t.Error("GenerationFailed = false")
	}
	// The retrieved sources still come back so the caller can use them.
	if len(ans.Sources) != 1 {
		t.Errorf("Sources = %v, want the retrieved chunk", ans.Sources)
	}
}

func Test_Ask_NoResultsSkipsGeneration(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	chat := &fakeChatModel{response: "should never be used"}
	a := newTestAnswerer(t, store, chat, AnswererConfig{})

	ans, err := a.Ask(context.Background(), "unknown topic", ModeKeyword)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if chat.calls != 0 {
		t.Errorf("model called %d times with no context, want 0", chat.calls)
	}
	if !strings.Contains(ans.Answer, "No relevant context") {
		t.Errorf("Answer = %q", ans.Answer)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("Sources = %v, want none", ans.Sources)
	}
}

func Test_Ask_RetrievalErrorPropagates(t *testing.T) {
	t.Parallel()
	store := &fakeStore{kwErr: fmt.Errorf("fulltext offline")}
	chat := &fakeChatModel{}
	a := newTestAnswerer(t, store, chat, AnswererConfig{})

	if _, err := a.Ask(context.Background(), "question", ModeKeyword); !errors.Is(err, ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
	if chat.calls != 0 {
		t.Errorf("model called %d times after retrieval failure, want 0", chat.calls)
	}
}

func Test_Ask_SurfacesDegradedRetrieval(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		vecErr:    fmt.Errorf("index offline"),
		kwResults: []SearchResult{keywordResult("doc:0000", "context", 1.0)},
	}
	chat := &fakeChatModel{response: "answer"}
	a := newTestAnswerer(t, store, chat, AnswererConfig{})

	ans, err := a.Ask(context.Background(), "question", ModeHybrid)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Degraded {
		t.Error("Degraded = false, want true with one failed branch")
	}
}

func Test_Ask_BudgetDropsLowestRankedChunks(t *testing.T) {
	t.Parallel()
	pad := strings.Repeat("x", 40)
	store := &fakeStore{kwResults: []SearchResult{
		keywordResult("doc:0000", "keep-this-chunk "+pad, 1.0),
		keywordResult("doc:0001", "drop-this-chunk "+pad, 0.5),
	}}
	chat := &fakeChatModel{response: "answer"}
	// Budget sized so the header plus the first chunk fit but the second
	// does not. The lowest-ranked chunk is the one sacrificed.
	a := newTestAnswerer(t, store, chat, AnswererConfig{MaxContextTokens: 30})

	if _, err := a.Ask(context.Background(), "question", ModeKeyword); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	contextBlock := chat.gotMessages[1].Content
	if !strings.Contains(contextBlock, "keep-this-chunk") {
		t.Errorf("top-ranked chunk missing from context: %q", contextBlock)
	}
	if strings.Contains(contextBlock, "drop-this-chunk") {
		t.Errorf("low-ranked chunk survived the budget: %q", contextBlock)
	}
}

func Test_Ask_PersistsToHistory(t *testing.T) {
	t.Parallel()
	store := &fakeStore{kwResults: []SearchResult{
		keywordResult("doc:0000", "context", 1.0),
	}}
	chat := &fakeChatModel{response: "the answer"}
	history := &fakeHistory{}
	a := newTestAnswerer(t, store, chat, AnswererConfig{History: history})

	if _, err := a.Ask(context.Background(), "the question", ModeKeyword); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if history.gotQuestion != "the question" || history.gotAnswer != "the answer" {
		t.Errorf("history got %q / %q", history.gotQuestion, history.gotAnswer)
	}
	if len(history.gotSources) != 1 || history.gotSources[0] != "doc:0000" {
		t.Errorf("history sources = %v", history.gotSources)
	}
}

func Test_Ask_HistoryFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()
	store := &fakeStore{kwResults: []SearchResult{
		keywordResult("doc:0000", "context", 1.0),
	}}
	chat := &fakeChatModel{response: "answer"}
	history := &fakeHistory{err: fmt.Errorf("disk full")}
	a := newTestAnswerer(t, store, chat, AnswererConfig{History: history})

	ans, err := a.Ask(context.Background(), "question", ModeKeyword)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Answer != "answer" {
		t.Errorf("Answer = %q", ans.Answer)
	}
}
