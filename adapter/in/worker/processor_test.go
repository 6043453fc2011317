package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mailroom/core/domain"
	"mailroom/core/port/out"
	"mailroom/core/service/classify"
	"mailroom/core/service/extract"
	"mailroom/core/service/ingest"
	"mailroom/core/service/route"
	"mailroom/pkg/guard"
)

type stubRepo struct {
	byExternalID    map[string]int64
	nextID          int64
	classifications map[int64]*domain.ClassificationResult
	findings        map[int64]map[int]domain.AttachmentFinding
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		byExternalID:    map[string]int64{},
		nextID:          1,
		classifications: map[int64]*domain.ClassificationResult{},
		findings:        map[int64]map[int]domain.AttachmentFinding{},
	}
}

func (r *stubRepo) FindIDByExternalID(_ context.Context, externalID string) (int64, bool, error) {
	id, ok := r.byExternalID[externalID]
	return id, ok, nil
}

func (r *stubRepo) Begin(context.Context) (out.MessageTx, error) {
	return &stubTx{repo: r}, nil
}

func (r *stubRepo) UpdateClassification(_ context.Context, messageID int64, result *domain.ClassificationResult) error {
	r.classifications[messageID] = result
	return nil
}

func (r *stubRepo) UpdateFinding(_ context.Context, messageID int64, position int, finding *domain.AttachmentFinding) error {
	if r.findings[messageID] == nil {
		r.findings[messageID] = map[int]domain.AttachmentFinding{}
	}
	r.findings[messageID][position] = *finding
	return nil
}

type stubTx struct{ repo *stubRepo }

func (t *stubTx) InsertMessage(_ context.Context, msg *domain.InboundMessage, _ string) (int64, error) {
	if _, ok := t.repo.byExternalID[msg.ExternalID]; ok {
		return 0, out.ErrDuplicateMessage
	}
	id := t.repo.nextID
	t.repo.nextID++
	t.repo.byExternalID[msg.ExternalID] = id
	return id, nil
}

func (t *stubTx) InsertAttachment(context.Context, int64, int, *domain.Attachment, string) error {
	return nil
}
func (t *stubTx) Commit(context.Context) error   { return nil }
func (t *stubTx) Rollback(context.Context) error { return nil }

type stubBlobs struct{}

func (stubBlobs) Put(context.Context, string, []byte) error    { return nil }
func (stubBlobs) Exists(context.Context, string) (bool, error) { return false, nil }
func (stubBlobs) Get(context.Context, string) ([]byte, error)  { return nil, nil }

type stubDispatcher struct {
	plans map[int64]domain.RoutingPlan
}

func (d *stubDispatcher) Dispatch(_ context.Context, messageID int64, _ *domain.ClassificationResult, plan domain.RoutingPlan) error {
	if d.plans == nil {
		d.plans = map[int64]domain.RoutingPlan{}
	}
	d.plans[messageID] = plan
	return nil
}

type stubTransport struct {
	messages []*domain.InboundMessage
}

func (t *stubTransport) FetchUnseen(context.Context) ([]*domain.InboundMessage, error) {
	return t.messages, nil
}

type stubRecognizer struct{}

// Recognize echoes the image payload so tests can tell extractions of
// different attachments apart.
func (stubRecognizer) Recognize(_ context.Context, image []byte) ([]out.OCRToken, error) {
	return []out.OCRToken{{Text: string(image), Confidence: 85}}, nil
}

type stubRasterizer struct{}

func (stubRasterizer) RasterizePDF(context.Context, []byte) ([][]byte, error) {
	return [][]byte{{1}}, nil
}

func testPipeline(t *testing.T, repo *stubRepo, dispatcher *stubDispatcher, transport *stubTransport) *PipelineProcessor {
	t.Helper()

	g := guard.New(nil, guard.Config{
		TokenCeiling:     100000,
		MaxConcurrent:    4,
		Window:           time.Hour,
		FailureThreshold: 5,
		Cooldown:         time.Minute,
	}, zerolog.Nop())

	classifier := classify.NewAIClassifier(nil, g, classify.AIConfig{Timeout: time.Second}, zerolog.Nop())
	extractor := extract.NewProcessor(extract.NewOCRService(stubRasterizer{}, stubRecognizer{}, zerolog.Nop()), zerolog.Nop())

	return NewPipelineProcessor(
		transport,
		ingest.NewIngestor(repo, stubBlobs{}, zerolog.Nop()),
		classifier,
		extractor,
		route.NewRouter(0.8),
		repo,
		dispatcher,
		zerolog.Nop(),
	)
}

// inquiryMessage carries an attachment, so its body must stay over the
// short-body limit or the forwarding short-circuit fires instead of the
// inquiry rules.
func inquiryMessage() *domain.InboundMessage {
	return &domain.InboundMessage{
		ExternalID: "msg-1@example.com",
		FromEmail:  "novak@example.com",
		Subject:    "Poptávka DN200 PN16",
		Body: "Dobrý den, poptáváme výrobu přírub DN200 PN16 dle přiloženého výkresu. " +
			"Prosím o cenovou nabídku včetně termínu dodání a dopravy na naši adresu. " +
			"Předem děkuji za zpracování, s pozdravem Jan Novák.",
		ReceivedAt: time.Now(),
		Attachments: []domain.Attachment{
			{Filename: "vykres.pdf", ContentType: "application/pdf", Data: []byte("pdf")},
		},
	}
}

// TestProcessMessagePipeline runs the full unit: ingest, heuristic
// classification, extraction and routing, with no AI call needed.
func TestProcessMessagePipeline(t *testing.T) {
	repo := newStubRepo()
	dispatcher := &stubDispatcher{}
	p := testPipeline(t, repo, dispatcher, &stubTransport{})

	err := p.ProcessMessage(context.Background(), NewProcessMessage(inquiryMessage()))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	result := repo.classifications[1]
	if result == nil {
		t.Fatal("classification not persisted")
	}
	if result.Category != domain.CategoryInquiry {
		t.Errorf("category = %s, want inquiry", result.Category)
	}
	if result.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", result.Confidence)
	}
	if result.Source != "heuristic" {
		t.Errorf("source = %s, ai stage must not run on a heuristic hit", result.Source)
	}

	if got := repo.findings[1]; len(got) != 1 || got[0].Filename != "vykres.pdf" {
		t.Errorf("findings = %v, want the pdf finding at position 0", got)
	}

	wantPlan := domain.RoutingPlan{
		domain.StageAttachments,
		domain.StageParseContent,
		domain.StageOrderMatching,
		domain.StageAutoCalculation,
		domain.StageOfferGeneration,
	}
	gotPlan := dispatcher.plans[1]
	if len(gotPlan) != len(wantPlan) {
		t.Fatalf("plan = %v, want %v", gotPlan, wantPlan)
	}
	for i := range wantPlan {
		if gotPlan[i] != wantPlan[i] {
			t.Fatalf("plan = %v, want %v", gotPlan, wantPlan)
		}
	}
}

// TestProcessMessageDuplicateFilenames verifies findings for
// attachments sharing one filename are persisted per position, not
// merged: each row keeps its own extraction.
func TestProcessMessageDuplicateFilenames(t *testing.T) {
	repo := newStubRepo()
	dispatcher := &stubDispatcher{}
	p := testPipeline(t, repo, dispatcher, &stubTransport{})

	msg := inquiryMessage()
	msg.Attachments = []domain.Attachment{
		{Filename: "image001.png", ContentType: "image/png", Data: []byte("prvni sken")},
		{Filename: "image001.png", ContentType: "image/png", Data: []byte("druhy sken")},
	}

	if err := p.ProcessMessage(context.Background(), NewProcessMessage(msg)); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	got := repo.findings[1]
	if len(got) != 2 {
		t.Fatalf("persisted %d findings, want one per attachment", len(got))
	}
	if got[0].Text != "prvni sken" || got[1].Text != "druhy sken" {
		t.Errorf("findings = %q / %q, each position must keep its own extraction",
			got[0].Text, got[1].Text)
	}
}

// TestProcessMessageShortCzechBody pins character-based body length: a
// body under the short-body limit in characters but over it in bytes
// (diacritics) must still short-circuit to attachment forwarding.
func TestProcessMessageShortCzechBody(t *testing.T) {
	repo := newStubRepo()
	dispatcher := &stubDispatcher{}
	p := testPipeline(t, repo, dispatcher, &stubTransport{})

	msg := inquiryMessage()
	msg.Subject = "FW: dokumentace"
	msg.Body = strings.Repeat("ř", 60) // 60 characters, 120 bytes

	if err := p.ProcessMessage(context.Background(), NewProcessMessage(msg)); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	result := repo.classifications[1]
	if result == nil {
		t.Fatal("classification not persisted")
	}
	if result.Category != domain.CategoryAttachmentForwarding {
		t.Errorf("category = %s, want attachment_forwarding", result.Category)
	}
	if result.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", result.Confidence)
	}
}

// TestProcessMessageDuplicate verifies the second delivery of the same
// external id stops after ingestion.
func TestProcessMessageDuplicate(t *testing.T) {
	repo := newStubRepo()
	dispatcher := &stubDispatcher{}
	p := testPipeline(t, repo, dispatcher, &stubTransport{})

	if err := p.ProcessMessage(context.Background(), NewProcessMessage(inquiryMessage())); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := p.ProcessMessage(context.Background(), NewProcessMessage(inquiryMessage())); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if len(dispatcher.plans) != 1 {
		t.Errorf("dispatched %d plans, duplicate must not re-run the pipeline", len(dispatcher.plans))
	}
}

func TestProcessPollFansOut(t *testing.T) {
	repo := newStubRepo()
	transport := &stubTransport{messages: []*domain.InboundMessage{
		inquiryMessage(),
		{ExternalID: "msg-2@example.com", Subject: "Reklamace", Body: "Dodaný díl má vadu."},
	}}
	p := testPipeline(t, repo, &stubDispatcher{}, transport)

	var submitted []*Message
	p.SetSubmitter(submitFunc(func(msg *Message) bool {
		submitted = append(submitted, msg)
		return true
	}))

	if err := p.ProcessPoll(context.Background(), NewMessage(JobMailPoll, nil)); err != nil {
		t.Fatalf("ProcessPoll: %v", err)
	}

	if len(submitted) != 2 {
		t.Fatalf("submitted %d jobs, want 2", len(submitted))
	}
	for _, msg := range submitted {
		if msg.Type != JobMessageProcess {
			t.Errorf("job type = %s, want %s", msg.Type, JobMessageProcess)
		}
		if msg.Raw == nil {
			t.Error("job missing raw message")
		}
	}
}

type submitFunc func(msg *Message) bool

func (f submitFunc) Submit(msg *Message) bool { return f(msg) }
