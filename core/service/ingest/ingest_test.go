package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/core/domain"
	"mailroom/core/port/out"
)

type fakeRepo struct {
	byExternalID map[string]int64
	nextID       int64
	findErr      error

	// raceOnce makes the first InsertMessage lose an insert race: the
	// row appears under the external id but the insert itself fails.
	raceOnce bool

	lastTx  *fakeTx
	updates int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byExternalID: map[string]int64{}, nextID: 1}
}

func (r *fakeRepo) FindIDByExternalID(_ context.Context, externalID string) (int64, bool, error) {
	if r.findErr != nil {
		return 0, false, r.findErr
	}
	id, ok := r.byExternalID[externalID]
	return id, ok, nil
}

func (r *fakeRepo) Begin(context.Context) (out.MessageTx, error) {
	r.lastTx = &fakeTx{repo: r}
	return r.lastTx, nil
}

func (r *fakeRepo) UpdateClassification(context.Context, int64, *domain.ClassificationResult) error {
	r.updates++
	return nil
}

func (r *fakeRepo) UpdateFinding(context.Context, int64, int, *domain.AttachmentFinding) error {
	r.updates++
	return nil
}

type insertedAttachment struct {
	position   int
	filename   string
	storageKey string
}

type fakeTx struct {
	repo        *fakeRepo
	attachments []insertedAttachment
	committed   bool
	rolledBack  bool
}

func (t *fakeTx) InsertMessage(_ context.Context, msg *domain.InboundMessage, _ string) (int64, error) {
	if t.repo.raceOnce {
		t.repo.raceOnce = false
		t.repo.byExternalID[msg.ExternalID] = 99
		return 0, out.ErrDuplicateMessage
	}
	if _, ok := t.repo.byExternalID[msg.ExternalID]; ok {
		return 0, out.ErrDuplicateMessage
	}
	id := t.repo.nextID
	t.repo.nextID++
	t.repo.byExternalID[msg.ExternalID] = id
	return id, nil
}

func (t *fakeTx) InsertAttachment(_ context.Context, _ int64, position int, att *domain.Attachment, storageKey string) error {
	t.attachments = append(t.attachments, insertedAttachment{
		position:   position,
		filename:   att.Filename,
		storageKey: storageKey,
	})
	return nil
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

type fakeBlobs struct {
	objects map[string][]byte
	putErr  error
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string][]byte{}} }

func (b *fakeBlobs) Put(_ context.Context, key string, data []byte) error {
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = data
	return nil
}

func (b *fakeBlobs) Exists(_ context.Context, key string) (bool, error) {
	_, ok := b.objects[key]
	return ok, nil
}

func (b *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	return b.objects[key], nil
}

func testMessage() *domain.InboundMessage {
	return &domain.InboundMessage{
		ExternalID: "<msg-1@example.com>",
		FromEmail:  "novak@example.com",
		Subject:    "Poptávka",
		Body:       "Prosím o nabídku.",
		ReceivedAt: time.Now(),
		Attachments: []domain.Attachment{
			{Filename: "vykres.pdf", ContentType: "application/pdf", Data: []byte("pdf-bytes"), Size: 9},
		},
	}
}

func TestIngestStoresMessageAndAttachments(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	ing := NewIngestor(repo, blobs, zerolog.Nop())

	res, err := ing.Ingest(context.Background(), testMessage())
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(1), res.MessageID)
	assert.Len(t, blobs.objects, 1)
	for key := range blobs.objects {
		assert.True(t, strings.HasPrefix(key, "attachments/1/"))
	}
}

// TestIngestDuplicateFilenames verifies attachments sharing one
// filename land as distinct rows under distinct positions: filenames
// repeat inside a message (inline "image001.png"), positions do not.
func TestIngestDuplicateFilenames(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	ing := NewIngestor(repo, blobs, zerolog.Nop())

	msg := testMessage()
	msg.Attachments = []domain.Attachment{
		{Filename: "image001.png", ContentType: "image/png", Data: []byte("first scan"), Size: 10},
		{Filename: "image001.png", ContentType: "image/png", Data: []byte("second scan"), Size: 11},
	}

	_, err := ing.Ingest(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, repo.lastTx.attachments, 2)
	for i, att := range repo.lastTx.attachments {
		assert.Equal(t, i, att.position)
		assert.Equal(t, "image001.png", att.filename)
	}
	assert.NotEqual(t,
		repo.lastTx.attachments[0].storageKey,
		repo.lastTx.attachments[1].storageKey,
		"distinct content must be addressed separately")
	assert.Len(t, blobs.objects, 2)
}

// TestIngestDuplicateShortCircuits covers the core idempotency
// property: re-ingesting the same external id yields one record and a
// duplicate-flagged second result with no writes.
func TestIngestDuplicateShortCircuits(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	ing := NewIngestor(repo, blobs, zerolog.Nop())

	first, err := ing.Ingest(context.Background(), testMessage())
	require.NoError(t, err)

	second, err := ing.Ingest(context.Background(), testMessage())
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.MessageID, second.MessageID)
	assert.Len(t, blobs.objects, 1, "duplicate ingest must not write")
}

// TestIngestInsertRace covers the lost-race path: the existence check
// passes but the insert hits the unique constraint.
func TestIngestInsertRace(t *testing.T) {
	repo := newFakeRepo()
	repo.raceOnce = true
	ing := NewIngestor(repo, newFakeBlobs(), zerolog.Nop())

	res, err := ing.Ingest(context.Background(), testMessage())
	require.NoError(t, err, "losing the insert race is not an error")

	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(99), res.MessageID)
}

func TestIngestStorageFailureRollsBack(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	blobs.putErr = errors.New("bucket unavailable")
	ing := NewIngestor(repo, blobs, zerolog.Nop())

	_, err := ing.Ingest(context.Background(), testMessage())
	require.Error(t, err)
}

func TestContentKeyIsStable(t *testing.T) {
	a := ContentKey(7, []byte("same bytes"))
	b := ContentKey(7, []byte("same bytes"))
	c := ContentKey(7, []byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "attachments/7/"))
}
