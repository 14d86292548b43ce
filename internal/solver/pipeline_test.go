package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/extract"
)

type fakeExtractor struct {
	doc *extract.Document
	err error
}

func (f *fakeExtractor) Extract(data []byte) (*extract.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type fakeGenerator struct {
	fragments []Fragment
	failAfter int // emit this many fragments, then fail; -1 means never
	calls     int
	streams   int
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (string, int, error) {
	f.calls++
	if f.failAfter == 0 {
		return "", 0, fmt.Errorf("%w: provider unavailable", domain.ErrGeneration)
	}
	var b strings.Builder
	tokens := 0
	for _, fr := range f.fragments {
		b.WriteString(fr.Text)
		tokens += fr.Tokens
	}
	return b.String(), tokens, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, req GenerateRequest, emit func(Fragment) error) (int, error) {
	f.calls++
	f.streams++
	tokens := 0
	for i, fr := range f.fragments {
		if f.failAfter >= 0 && i == f.failAfter {
			return tokens, fmt.Errorf("%w: stream broke", domain.ErrGeneration)
		}
		tokens += fr.Tokens
		if err := emit(fr); err != nil {
			return tokens, err
		}
	}
	return tokens, nil
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	// createErr forces Create to fail, exercising the tombstone path.
	createErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*domain.Job{}}
}

func (m *memJobRepo) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) MarkProcessing(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok && j.Status == domain.JobStatusPending {
		j.Status = domain.JobStatusProcessing
	}
	return nil
}

func (m *memJobRepo) Finalize(ctx context.Context, jobID string, status domain.JobStatus, errMsg string, completedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	j.Status = status
	j.ErrorMessage = errMsg
	j.CompletedAt = &completedAt
	return true, nil
}

func (m *memJobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

type sinkEvent struct {
	kind string // notice | warning | fragment
	text string
}

type recordingSink struct {
	events []sinkEvent
}

func (s *recordingSink) Notice(ctx context.Context, msg string) error {
	s.events = append(s.events, sinkEvent{kind: "notice", text: msg})
	return nil
}

func (s *recordingSink) Warning(ctx context.Context, msg string) error {
	s.events = append(s.events, sinkEvent{kind: "warning", text: msg})
	return nil
}

func (s *recordingSink) Fragment(ctx context.Context, text string) error {
	s.events = append(s.events, sinkEvent{kind: "fragment", text: text})
	return nil
}

func (s *recordingSink) fragments() []string {
	var out []string
	for _, e := range s.events {
		if e.kind == "fragment" {
			out = append(out, e.text)
		}
	}
	return out
}

func testDoc(texts ...string) *extract.Document {
	doc := &extract.Document{PageCount: len(texts)}
	for i, text := range texts {
		page := extract.Page{Number: i + 1, Text: text}
		if text == "" {
			page.Err = "unreadable"
			page.Text = fmt.Sprintf("[page %d could not be read: unreadable]", i+1)
		} else {
			doc.TotalChars += len(text)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc
}

func newTestPipeline(ext Extractor, gen Generator, repo domain.JobRepository) *Pipeline {
	return NewPipeline(ext, gen, NewJobRecorder(repo, zerolog.Nop()), zerolog.Nop())
}

func TestPipelineStreamingSuccess(t *testing.T) {
	repo := newMemJobRepo()
	gen := &fakeGenerator{
		fragments: []Fragment{{Text: "Solution ", Tokens: 2}, {Text: "one.", Tokens: 1}},
		failAfter: -1,
	}
	p := newTestPipeline(&fakeExtractor{doc: testDoc("What is 2+2?")}, gen, repo)

	sink := &recordingSink{}
	res, err := p.Run(context.Background(), Input{
		UserID:    "u1",
		Filename:  "paper.pdf",
		Primary:   []byte("%PDF"),
		Streaming: true,
	}, sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Solutions != "Solution one." {
		t.Fatalf("solutions = %q", res.Solutions)
	}
	if res.Metrics.TokenCount != 3 {
		t.Fatalf("token count = %d, want 3", res.Metrics.TokenCount)
	}
	if res.Metrics.PrimaryChars != len("What is 2+2?") {
		t.Fatalf("primary chars = %d", res.Metrics.PrimaryChars)
	}

	// Notices precede fragments, in generation order.
	var kinds []string
	for _, e := range sink.events {
		kinds = append(kinds, e.kind)
	}
	wantPrefix := []string{"notice", "notice", "notice", "notice", "fragment", "fragment"}
	if len(kinds) != len(wantPrefix) {
		t.Fatalf("event kinds = %v", kinds)
	}
	for i, k := range wantPrefix {
		if kinds[i] != k {
			t.Fatalf("event %d = %s, want %s (all: %v)", i, kinds[i], k, kinds)
		}
	}

	job, err := repo.GetByID(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("job lookup: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
	if job.CompletedAt == nil {
		t.Fatal("completed job must carry a completion timestamp")
	}
}

func TestPipelineMidStreamFailureKeepsPartialOutput(t *testing.T) {
	repo := newMemJobRepo()
	gen := &fakeGenerator{
		fragments: []Fragment{
			{Text: "a", Tokens: 1}, {Text: "b", Tokens: 1}, {Text: "c", Tokens: 1}, {Text: "d", Tokens: 1},
		},
		failAfter: 3,
	}
	p := newTestPipeline(&fakeExtractor{doc: testDoc("q")}, gen, repo)

	sink := &recordingSink{}
	_, err := p.Run(context.Background(), Input{
		UserID: "u1", Filename: "paper.pdf", Primary: []byte("%PDF"), Streaming: true,
	}, sink)
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}

	frags := sink.fragments()
	if len(frags) != 3 {
		t.Fatalf("client received %d fragments, want the 3 emitted before the failure", len(frags))
	}

	var failedJob *domain.Job
	for id := range repo.jobs {
		failedJob, _ = repo.GetByID(context.Background(), id)
	}
	if failedJob == nil || failedJob.Status != domain.JobStatusFailed {
		t.Fatalf("job should be failed, got %+v", failedJob)
	}
	if failedJob.ErrorMessage == "" {
		t.Fatal("failed job must carry the failure message")
	}
}

func TestPipelineEmptyFileNeverCallsGenerator(t *testing.T) {
	gen := &fakeGenerator{failAfter: -1}
	p := newTestPipeline(&fakeExtractor{doc: testDoc("q")}, gen, newMemJobRepo())

	_, err := p.Run(context.Background(), Input{
		UserID: "u1", Filename: "paper.pdf", Primary: nil, Streaming: true,
	}, &recordingSink{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator was invoked %d times for an empty file", gen.calls)
	}
}

func TestPipelineExtractionFailure(t *testing.T) {
	extErr := fmt.Errorf("%w: unreadable document", domain.ErrExtraction)
	p := newTestPipeline(&fakeExtractor{err: extErr}, &fakeGenerator{failAfter: -1}, newMemJobRepo())

	_, err := p.Run(context.Background(), Input{
		UserID: "u1", Filename: "paper.pdf", Primary: []byte("junk"),
	}, nil)
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestPipelinePageErrorsBecomeWarnings(t *testing.T) {
	p := newTestPipeline(&fakeExtractor{doc: testDoc("ok", "", "ok")}, &fakeGenerator{
		fragments: []Fragment{{Text: "x", Tokens: 1}},
		failAfter: -1,
	}, newMemJobRepo())

	sink := &recordingSink{}
	if _, err := p.Run(context.Background(), Input{
		UserID: "u1", Filename: "paper.pdf", Primary: []byte("%PDF"), Streaming: true,
	}, sink); err != nil {
		t.Fatalf("run: %v", err)
	}

	warned := false
	for _, e := range sink.events {
		if e.kind == "warning" && strings.Contains(e.text, "Page 2") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warning for page 2, events: %+v", sink.events)
	}
}

func TestPipelineAggregateModeUsesGenerateCall(t *testing.T) {
	gen := &fakeGenerator{
		fragments: []Fragment{{Text: "full answer", Tokens: 2}},
		failAfter: -1,
	}
	p := newTestPipeline(&fakeExtractor{doc: testDoc("q")}, gen, newMemJobRepo())

	res, err := p.Run(context.Background(), Input{
		UserID: "u1", Filename: "paper.pdf", Primary: []byte("%PDF"), Streaming: false,
	}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if gen.streams != 0 {
		t.Fatal("aggregate mode must not open a stream")
	}
	if res.Solutions != "full answer" {
		t.Fatalf("solutions = %q", res.Solutions)
	}
}

func TestPipelineRunsAreIndependent(t *testing.T) {
	repo := newMemJobRepo()
	gen := &fakeGenerator{fragments: []Fragment{{Text: "x", Tokens: 1}}, failAfter: -1}
	p := newTestPipeline(&fakeExtractor{doc: testDoc("q")}, gen, repo)

	in := Input{UserID: "u1", Filename: "paper.pdf", Primary: []byte("%PDF")}
	res1, err := p.Run(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	res2, err := p.Run(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res1.JobID == res2.JobID {
		t.Fatalf("identical inputs must still produce distinct jobs, both got %s", res1.JobID)
	}
}

func TestJobRecorderIdempotence(t *testing.T) {
	repo := newMemJobRepo()
	rec := NewJobRecorder(repo, zerolog.Nop())
	ctx := context.Background()

	id := rec.Create(ctx, "u1", "paper.pdf")
	if id == TombstoneJobID {
		t.Fatal("expected a real job id")
	}
	rec.Start(ctx, id)
	rec.Complete(ctx, id)
	rec.Complete(ctx, id)
	rec.Fail(ctx, id, "too late")

	job, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, terminal state must be immutable", job.Status)
	}
	if job.ErrorMessage != "" {
		t.Fatalf("error message leaked into a completed job: %q", job.ErrorMessage)
	}
}

func TestJobRecorderTombstone(t *testing.T) {
	repo := newMemJobRepo()
	repo.createErr = errors.New("db down")
	rec := NewJobRecorder(repo, zerolog.Nop())
	ctx := context.Background()

	id := rec.Create(ctx, "u1", "paper.pdf")
	if id != TombstoneJobID {
		t.Fatalf("expected tombstone, got %q", id)
	}
	// Lifecycle calls against the tombstone must be harmless no-ops.
	rec.Start(ctx, id)
	rec.Complete(ctx, id)
	rec.Fail(ctx, id, "whatever")
}
