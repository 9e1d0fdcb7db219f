package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/docjudge/internal/chunker"
	"github.com/dgallion1/docjudge/internal/contextrules"
	"github.com/dgallion1/docjudge/internal/decision"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/model"
	"github.com/dgallion1/docjudge/internal/parser"
	"github.com/dgallion1/docjudge/internal/preprocess"
	"github.com/dgallion1/docjudge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChunkCfg = chunker.Config{ChunkSize: 100, ChunkOverlap: 20}

func sampleText() string {
	var lines []string
	for i := range 12 {
		lines = append(lines, fmt.Sprintf("Clause %d: the supplier shall   deliver\tgoods on time.", i))
	}
	return strings.Join(lines, "\n")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func legalStub() *llm.StubBackend {
	return llm.NewStubBackend(
		llm.StubRule{Contains: "Summarize the following text chunk", Response: "```json\n{\"summary\": \"Chunk summary\", \"topics\": [\"legal\", \"finance\"]}\n```"},
		llm.StubRule{Contains: "Extract the most important information", Response: `{"entities": [], "facts": [], "numbers": []}`},
		llm.StubRule{Contains: "Combine all chunk information", Response: `{"summary": "Combined summary", "insights": ["a", "b", "c"], "uncertainties": [], "confidence": 0.9, "audience": "legal"}`},
	)
}

func newProcessor(t *testing.T, opts Options) *Processor {
	t.Helper()
	if opts.Chunk == (chunker.Config{}) {
		opts.Chunk = testChunkCfg
	}
	p, err := NewProcessor(opts)
	require.NoError(t, err)
	return p
}

func TestProcessDocument_EndToEnd(t *testing.T) {
	docPath := writeFile(t, "contract.txt", sampleText())
	ctxPath := writeFile(t, "context.md", "priority=legal, finance\nsensitivity=0.8\n")
	storePath := filepath.Join(t.TempDir(), "out", "chunks.jsonl")

	stub := legalStub()
	p := newProcessor(t, Options{Store: store.NewJSONLStore(storePath)})
	j, err := p.ProcessDocument(context.Background(), docPath, ctxPath, stub)
	require.NoError(t, err)

	want, err := chunker.Split(preprocess.Preprocess(sampleText()), testChunkCfg)
	require.NoError(t, err)
	require.Greater(t, len(want), 1)
	require.Len(t, j.Chunks, len(want))
	for i, c := range j.Chunks {
		assert.Equal(t, i, c.ChunkID)
		assert.Equal(t, want[i].Text, c.Text)
		assert.False(t, c.Degraded)
	}

	assert.Equal(t, []string{"legal", "finance"}, j.Topics)
	assert.Equal(t, 1.0, j.Score)
	assert.Equal(t, decision.FullRead, j.Recommendation)
	assert.Equal(t, 1.0, j.Confidence)
	assert.Equal(t, "Combined summary", j.DocSummary)
	assert.Equal(t, 0.9, j.DocConfidence)
	assert.False(t, j.NeedFullRead)
	assert.Empty(t, j.ReadReasons)
	assert.Equal(t, "legal", j.DocExtra["audience"])
	assert.Equal(t, strings.TrimSuffix(strings.Repeat("Chunk summary\n", len(want)), "\n"), j.Summary)
	assert.Equal(t, "stub", j.Backend)
	assert.NotEmpty(t, j.RunID)

	assert.Equal(t, "contract.txt", j.Metadata.Filename)
	assert.Equal(t, ".txt", j.Metadata.Extension)
	assert.Equal(t, len(want), j.Metadata.ChunkCount)
	assert.Equal(t, 1, j.Metadata.Pages)
	assert.Equal(t, ContentHashHex([]byte(sampleText())), j.Metadata.ContentHash)
	assert.Equal(t, int64(len(sampleText())), j.Metadata.SizeBytes)

	// Two calls per chunk plus one synthesis call.
	assert.Len(t, stub.Prompts(), 2*len(want)+1)
	last := stub.Prompts()[len(stub.Prompts())-1]
	assert.Contains(t, last, "priority=legal, finance")

	stored, err := store.NewJSONLStore(storePath).LoadAll()
	require.NoError(t, err)
	assert.Len(t, stored, len(want))

	b, err := json.Marshal(j)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"summary", "topics", "chunks", "score", "recommendation", "context", "metadata", "read_reasons"} {
		assert.Contains(t, m, k)
	}
	assert.Equal(t, 0.8, m["context"].(map[string]any)["sensitivity"])
}

func TestProcessDocument_MissingContext(t *testing.T) {
	docPath := writeFile(t, "a.txt", "short document")
	p := newProcessor(t, Options{})
	j, err := p.ProcessDocument(context.Background(), docPath, filepath.Join(t.TempDir(), "none.md"), legalStub())
	require.NoError(t, err)

	assert.Equal(t, 0.0, j.Score)
	assert.Equal(t, decision.NotRelevant, j.Recommendation)
	// One chunk costs 0.1 confidence.
	assert.InDelta(t, 0.9, j.Confidence, 1e-9)
	b, err := json.Marshal(j.Context)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}

func TestProcess_DefaultBackend(t *testing.T) {
	stub := llm.NewStubBackend(llm.DefaultStubRules()...)
	p := newProcessor(t, Options{Backend: stub})
	j, err := p.Process(context.Background(), Request{Data: []byte("inline text"), Filename: "inline.txt"})
	require.NoError(t, err)
	assert.Equal(t, "inline.txt", j.Metadata.Filename)
	assert.Equal(t, []string{"ACME Corp", "payment due in 30 days", "legal", "finance"}, j.Topics)
	assert.NotEmpty(t, stub.Prompts())
}

func TestProcess_NoBackend(t *testing.T) {
	p := newProcessor(t, Options{})
	_, err := p.Process(context.Background(), Request{Data: []byte("x"), Filename: "x.txt"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrBackendUnavailable))
}

func TestProcess_UnsupportedFileType(t *testing.T) {
	p := newProcessor(t, Options{Backend: legalStub()})
	_, err := p.ProcessDocument(context.Background(), writeFile(t, "notes.abc", "text"), "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrUnsupportedFileType))
	var ute *parser.UnsupportedFileTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, ".abc", ute.Ext)
}

func TestProcess_MalformedKeyInfo(t *testing.T) {
	stub := llm.NewStubBackend(
		llm.StubRule{Contains: "Extract the most important information", Response: "```\nnot json at all\n```"},
	).WithFallback(`{"summary": "ok"}`)
	p := newProcessor(t, Options{})
	j, err := p.Process(context.Background(), Request{Data: []byte("one chunk"), Filename: "a.txt", Backend: stub})
	require.NoError(t, err)
	require.Len(t, j.Chunks, 1)
	assert.Equal(t, map[string]any{"error": "INVALID_JSON", "raw": "not json at all"}, j.Chunks[0].KeyInfo)
	assert.False(t, j.Chunks[0].Degraded)
}

type failingBackend struct{ calls atomic.Int32 }

func (f *failingBackend) Chat(context.Context, string) (string, error) {
	f.calls.Add(1)
	return "", errors.New("connection refused")
}

func TestProcess_AllBackendCallsFail(t *testing.T) {
	b := &failingBackend{}
	p := newProcessor(t, Options{})
	_, err := p.Process(context.Background(), Request{Data: []byte(sampleText()), Filename: "a.txt", Backend: b})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendFailed))
	assert.Greater(t, int(b.calls.Load()), 2)
}

// synthesisFails answers chunk prompts but fails the synthesis call.
type synthesisFails struct{ inner *llm.StubBackend }

func (s synthesisFails) Chat(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Combine all chunk information") {
		return "", errors.New("overloaded")
	}
	return s.inner.Chat(ctx, prompt)
}

func TestProcess_SynthesisFailureDegrades(t *testing.T) {
	p := newProcessor(t, Options{})
	j, err := p.Process(context.Background(), Request{
		Data:     []byte(sampleText()),
		Filename: "a.txt",
		Backend:  synthesisFails{inner: legalStub()},
	})
	require.NoError(t, err)
	assert.Equal(t, "", j.DocSummary)
	assert.Equal(t, 0.3, j.DocConfidence)
	assert.True(t, j.NeedFullRead)
	assert.Contains(t, j.DocExtra["error"], "overloaded")
	assert.NotEmpty(t, j.Chunks)
}

type recordingObserver struct {
	stages []JobStatus
	total  int
	done   atomic.Int32
}

func (r *recordingObserver) Stage(s JobStatus)           { r.stages = append(r.stages, s) }
func (r *recordingObserver) ChunkTotal(n int)            { r.total = n }
func (r *recordingObserver) ChunkDone(model.ChunkResult) { r.done.Add(1) }

func TestProcess_ObserverAndConcurrency(t *testing.T) {
	obs := &recordingObserver{}
	p := newProcessor(t, Options{Concurrency: 4})
	j, err := p.Process(context.Background(), Request{
		Data:     []byte(sampleText()),
		Filename: "a.txt",
		Backend:  legalStub(),
		Observer: obs,
	})
	require.NoError(t, err)
	assert.Equal(t, []JobStatus{StatusExtracting, StatusAnalyzing, StatusReasoning}, obs.stages)
	assert.Equal(t, len(j.Chunks), obs.total)
	assert.Equal(t, int32(len(j.Chunks)), obs.done.Load())
	for i, c := range j.Chunks {
		assert.Equal(t, i, c.ChunkID)
	}
}

func TestProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newProcessor(t, Options{})
	_, err := p.Process(ctx, Request{Data: []byte(sampleText()), Filename: "a.txt", Backend: legalStub()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewProcessor_InvalidChunkConfig(t *testing.T) {
	_, err := NewProcessor(Options{Chunk: chunker.Config{ChunkSize: 10, ChunkOverlap: 10}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, chunker.ErrInvalidConfig))
}

func TestOrchestrator_RunsJobs(t *testing.T) {
	p := newProcessor(t, Options{Backend: legalStub()})
	o := NewOrchestrator(OrchestratorConfig{Workers: 2, QueueSize: 4}, p, nil)
	o.Start(context.Background())
	defer o.Stop()

	rules := contextrules.Parse("priority=legal")
	good := NewJob("a.txt", []byte(sampleText()), rules, nil, false)
	bad := NewJob("a.abc", []byte("x"), rules, nil, false)
	require.NoError(t, o.Submit(good))
	require.NoError(t, o.Submit(bad))

	require.Eventually(t, func() bool {
		return o.GetJob(good.ID).Snapshot().Status == StatusCompleted &&
			o.GetJob(bad.ID).Snapshot().Status == StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	snap := good.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, snap.Progress.TotalChunks, snap.Progress.ChunksProcessed)
	assert.Equal(t, "legal", snap.Result.Context.PriorityTopics[0])

	badSnap := bad.Snapshot()
	assert.Equal(t, string(StatusExtracting), badSnap.Phase)
	require.Len(t, badSnap.Progress.Errors, 1)
	assert.Contains(t, badSnap.Progress.Errors[0], "unsupported file type: .abc")
}

func TestOrchestrator_QueueFull(t *testing.T) {
	p := newProcessor(t, Options{Backend: legalStub()})
	// Not started: nothing drains the queue.
	o := NewOrchestrator(OrchestratorConfig{Workers: 1, QueueSize: 1}, p, nil)

	require.NoError(t, o.Submit(NewJob("a.txt", []byte("a"), contextrules.Rules{}, nil, false)))
	job := NewJob("b.txt", []byte("b"), contextrules.Rules{}, nil, false)
	err := o.Submit(job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, StatusFailed, job.Snapshot().Status)
	assert.Equal(t, 1, o.QueueDepth())
}

// corruptPDF is a PDF whose xref points object 1 at bytes that are not an
// object; the pdf library panics while resolving it.
func corruptPDF() []byte {
	head := "%PDF-1.4\n"
	body := head + "garbage here\n"
	return []byte(body + fmt.Sprintf(
		"xref\n0 2\n0000000000 65535 f \n%010d 00000 n \ntrailer\n<< /Size 2 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(head), len(body)))
}

func TestProcess_CorruptPDF(t *testing.T) {
	p := newProcessor(t, Options{Backend: legalStub()})
	_, err := p.Process(context.Background(), Request{Data: corruptPDF(), Filename: "upload.pdf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrMalformedDocument))
}

func TestProcess_NullSynthesisListsStayArrays(t *testing.T) {
	stub := llm.NewStubBackend(
		llm.StubRule{Contains: "Combine all chunk information", Response: `{"summary": "s", "insights": null, "uncertainties": null}`},
	).WithFallback(`{"summary": "ok"}`)
	p := newProcessor(t, Options{})
	j, err := p.Process(context.Background(), Request{Data: []byte("one chunk"), Filename: "a.txt", Backend: stub})
	require.NoError(t, err)

	b, err := json.Marshal(j)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &out))
	assert.JSONEq(t, `[]`, string(out["insights"]))
	assert.JSONEq(t, `[]`, string(out["uncertainties"]))
}

// panicsOnSynthesis answers chunk prompts and panics on the synthesis call.
type panicsOnSynthesis struct{ inner *llm.StubBackend }

func (s panicsOnSynthesis) Chat(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Combine all chunk information") {
		panic("backend exploded")
	}
	return s.inner.Chat(ctx, prompt)
}

func TestOrchestrator_SurvivesBadJobs(t *testing.T) {
	p := newProcessor(t, Options{Backend: legalStub()})
	o := NewOrchestrator(OrchestratorConfig{Workers: 1, QueueSize: 4}, p, nil)
	o.Start(context.Background())
	defer o.Stop()

	corrupt := NewJob("upload.pdf", corruptPDF(), contextrules.Rules{}, nil, false)
	panicky := NewJob("a.txt", []byte("short text"), contextrules.Rules{}, panicsOnSynthesis{inner: legalStub()}, false)
	good := NewJob("b.txt", []byte(sampleText()), contextrules.Rules{}, nil, false)
	for _, j := range []*Job{corrupt, panicky, good} {
		require.NoError(t, o.Submit(j))
	}

	require.Eventually(t, func() bool {
		return good.Snapshot().Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cs := corrupt.Snapshot()
	assert.Equal(t, StatusFailed, cs.Status)
	assert.Equal(t, string(StatusExtracting), cs.Phase)
	require.Len(t, cs.Progress.Errors, 1)
	assert.Contains(t, cs.Progress.Errors[0], "malformed pdf")

	ps := panicky.Snapshot()
	assert.Equal(t, StatusFailed, ps.Status)
	assert.Equal(t, string(StatusReasoning), ps.Phase)
	require.NotEmpty(t, ps.Progress.Errors)
	assert.Contains(t, ps.Progress.Errors[len(ps.Progress.Errors)-1], "backend exploded")
}

func TestOrchestrator_StopFailsQueuedAndRejectsSubmit(t *testing.T) {
	p := newProcessor(t, Options{Backend: legalStub()})
	// Not started: queued jobs are still waiting when Stop runs.
	o := NewOrchestrator(OrchestratorConfig{Workers: 1, QueueSize: 4}, p, nil)
	first := NewJob("a.txt", []byte("a"), contextrules.Rules{}, nil, false)
	second := NewJob("b.txt", []byte("b"), contextrules.Rules{}, nil, false)
	require.NoError(t, o.Submit(first))
	require.NoError(t, o.Submit(second))

	o.Stop()
	o.Stop()

	for _, j := range []*Job{first, second} {
		snap := j.Snapshot()
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Equal(t, []string{"shut down before processing"}, snap.Progress.Errors)
	}

	late := NewJob("c.txt", []byte("c"), contextrules.Rules{}, nil, false)
	err := o.Submit(late)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStopped))
	assert.Equal(t, StatusFailed, late.Snapshot().Status)
	assert.NotNil(t, o.GetJob(late.ID))
}

func TestOrchestrator_SubmitRacingStop(t *testing.T) {
	p := newProcessor(t, Options{Backend: legalStub()})
	o := NewOrchestrator(OrchestratorConfig{Workers: 2, QueueSize: 64}, p, nil)
	o.Start(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 200 {
			err := o.Submit(NewJob(fmt.Sprintf("%d.txt", i), []byte("x"), contextrules.Rules{}, nil, false))
			if err != nil && !errors.Is(err, ErrStopped) && !errors.Is(err, ErrQueueFull) {
				t.Errorf("unexpected submit error: %v", err)
			}
		}
	}()
	o.Stop()
	<-done
}
