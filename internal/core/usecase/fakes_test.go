package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

type repoFake struct {
	mu           sync.Mutex
	docs         map[string]*domain.Document
	summaries    map[string]*domain.Summary
	trace        []domain.DocumentStatus
	created      *domain.Document
	createErr    error
	getErr       error
	statusErr    error
	summaryErr   error
	notifiedIDs  []string
	invalidMoves []string
	lastPage     domain.Page
}

func newRepoFake(docs ...*domain.Document) *repoFake {
	f := &repoFake{docs: map[string]*domain.Document{}, summaries: map[string]*domain.Summary{}}
	for _, doc := range docs {
		copyDoc := *doc
		f.docs[doc.ID] = &copyDoc
	}
	return f
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.created = &copyDoc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, update domain.StatusUpdate) error {
	if f.statusErr != nil && status != domain.StatusFailed {
		return f.statusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	if !doc.Status.CanTransitionTo(status) {
		f.invalidMoves = append(f.invalidMoves, fmt.Sprintf("%s->%s", doc.Status, status))
		return domain.ErrInvalidTransition
	}
	doc.Status = status
	doc.Error = update.Error
	if update.PageCount != nil {
		pages := *update.PageCount
		doc.PageCount = &pages
	}
	f.trace = append(f.trace, status)
	return nil
}

func (f *repoFake) CreateSummary(_ context.Context, summary *domain.Summary) error {
	if f.summaryErr != nil {
		return f.summaryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[summary.DocumentID]
	if !doc.Status.CanTransitionTo(domain.StatusCompleted) {
		return domain.ErrInvalidTransition
	}
	copySummary := *summary
	f.summaries[summary.DocumentID] = &copySummary
	doc.Status = domain.StatusCompleted
	doc.Error = ""
	f.trace = append(f.trace, domain.StatusCompleted)
	return nil
}

func (f *repoFake) GetSummaryByDocumentID(_ context.Context, documentID string) (*domain.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary, ok := f.summaries[documentID]
	if !ok {
		return nil, domain.ErrSummaryNotFound
	}
	copySummary := *summary
	return &copySummary, nil
}

func (f *repoFake) MarkSummaryNotified(_ context.Context, summaryID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifiedIDs = append(f.notifiedIDs, summaryID)
	for _, summary := range f.summaries {
		if summary.ID == summaryID {
			summary.EmailSent = true
			summary.EmailSentAt = &at
		}
	}
	return nil
}

func (f *repoFake) ListDocuments(_ context.Context, page domain.Page) ([]domain.DocumentListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPage = page
	items := make([]domain.DocumentListItem, 0, len(f.docs))
	for id, doc := range f.docs {
		_, hasSummary := f.summaries[id]
		items = append(items, domain.DocumentListItem{Document: *doc, HasSummary: hasSummary})
	}
	return items, nil
}

func (f *repoFake) ListSummaries(_ context.Context, page domain.Page) ([]domain.SummaryListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPage = page
	items := make([]domain.SummaryListItem, 0, len(f.summaries))
	for id, summary := range f.summaries {
		items = append(items, domain.SummaryListItem{Summary: *summary, Filename: f.docs[id].Filename})
	}
	return items, nil
}

func (f *repoFake) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	delete(f.docs, id)
	delete(f.summaries, id)
	return nil
}

func (f *repoFake) status(id string) domain.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Status
}

type extractorFake struct {
	out   domain.Extraction
	err   error
	calls int
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (domain.Extraction, error) {
	f.calls++
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	return f.out, nil
}

type llmFake struct {
	mu      sync.Mutex
	prompts []domain.Prompt
	reply   func(domain.Prompt) (string, error)
}

func (f *llmFake) Complete(_ context.Context, prompt domain.Prompt) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(prompt)
	}
	return "summary of " + fmt.Sprint(len(prompt.User)), nil
}

func (f *llmFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type summarizerFake struct {
	out string
	err error
}

func (f *summarizerFake) Summarize(context.Context, string) (string, error) {
	return f.out, f.err
}

type notifierFake struct {
	to, subject, body string
	err               error
	calls             int
}

func (f *notifierFake) Notify(_ context.Context, to, subject, body string) error {
	f.calls++
	f.to, f.subject, f.body = to, subject, body
	return f.err
}

type lockerFake struct {
	held     map[string]bool
	err      error
	released []string
}

func (f *lockerFake) Acquire(_ context.Context, documentID string, _ time.Duration) (func(context.Context) error, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[documentID] {
		return nil, false, nil
	}
	f.held[documentID] = true
	return func(context.Context) error {
		delete(f.held, documentID)
		f.released = append(f.released, documentID)
		return nil
	}, true, nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	err       error
	deleted   []string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.savedBody)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	jobs []domain.Job
	err  error
}

func (f *queueFake) Enqueue(_ context.Context, job domain.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) Consume(context.Context, ports.JobHandler) error {
	return errors.New("not implemented")
}
