package works

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/ivioje/globe-scholars/internal/queue"
	"github.com/ivioje/globe-scholars/internal/shared/storage/object"
	"github.com/ivioje/globe-scholars/internal/shared/storage/object/local"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func samplePDF(t *testing.T, line string) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Cell(40, 10, line)
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("render pdf: %v", err)
	}
	return buf.Bytes()
}

type stubQueue struct {
	messages []queue.Message
	err      error
}

func (s *stubQueue) Send(ctx context.Context, msg queue.Message) error {
	_ = ctx
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

// faultyStore fails Rename for keys containing failRenameOn.
type faultyStore struct {
	object.ObjectStore
	failRenameOn string
}

func (f *faultyStore) Rename(ctx context.Context, from, to string) error {
	if f.failRenameOn != "" && strings.Contains(from, f.failRenameOn) {
		return errors.New("simulated rename failure")
	}
	return f.ObjectStore.Rename(ctx, from, to)
}

// failingDeleteRepo runs the stage hook and then fails as if the row delete errored.
type failingDeleteRepo struct {
	*MemoryRepo
}

func (r failingDeleteRepo) Delete(ctx context.Context, id, requesterID string, stage StageFunc) (Work, error) {
	w, err := r.MemoryRepo.Get(ctx, id)
	if err != nil {
		return Work{}, err
	}
	if err := stage(w); err != nil {
		return Work{}, err
	}
	return Work{}, errors.New("simulated delete failure")
}

type failingCreateRepo struct {
	*MemoryRepo
}

func (failingCreateRepo) Create(ctx context.Context, w Work) error {
	return errors.New("insert failed")
}

type testEnv struct {
	svc   *Service
	repo  *MemoryRepo
	store object.ObjectStore
	queue *stubQueue
	dir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	repo := NewMemoryRepo()
	store := local.New(dir)
	q := &stubQueue{}
	return &testEnv{
		svc:   &Service{Repo: repo, Store: store, JobQueue: q, Now: func() time.Time { return fixedNow }},
		repo:  repo,
		store: store,
		queue: q,
		dir:   dir,
	}
}

func pdfInput(uploader string, body []byte) CreateInput {
	return CreateInput{
		Title:               "On Graphs",
		Authors:             "Ada Lovelace, Alan Turing",
		PublicationYear:     2024,
		Keywords:            "graphs, theory",
		UploaderID:          uploader,
		FileName:            "paper.pdf",
		DeclaredContentType: ContentTypePDF,
		Size:                int64(len(body)),
		Body:                bytes.NewReader(body),
	}
}

func docxInput(uploader string) CreateInput {
	body := []byte("PK\x03\x04fake-docx-body")
	return CreateInput{
		Title:               "Field Notes",
		Authors:             "Grace Hopper",
		PublicationYear:     2023,
		UploaderID:          uploader,
		FileName:            "report.docx",
		DeclaredContentType: ContentTypeDOCX,
		Size:                int64(len(body)),
		Body:                bytes.NewReader(body),
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return n
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}
