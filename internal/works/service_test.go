package works

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePDFCompletesImmediately(t *testing.T) {
	env := newTestEnv(t)
	body := samplePDF(t, "hello")

	w, err := env.svc.Create(context.Background(), pdfInput("acct-1", body))
	require.NoError(t, err)

	assert.Equal(t, FileTypePDF, w.FileType)
	assert.Equal(t, StatusCompleted, w.ConversionStatus)
	assert.Equal(t, 100, w.ConversionProgress)
	assert.False(t, w.HasConverted())
	assert.Equal(t, int64(len(body)), w.FileSize)
	assert.Empty(t, env.queue.messages, "pdf uploads are never queued")

	stored, err := env.repo.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, stored)
}

func TestCreateDOCXStartsPendingAndQueuesJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithRequestID(context.Background(), "req-9")

	w, err := env.svc.Create(ctx, docxInput("acct-1"))
	require.NoError(t, err)

	assert.Equal(t, FileTypeDOCX, w.FileType)
	assert.Equal(t, StatusPending, w.ConversionStatus)
	assert.Equal(t, 0, w.ConversionProgress)
	require.Len(t, env.queue.messages, 1)
	assert.Equal(t, w.ID, env.queue.messages[0].WorkID)
	assert.Equal(t, "req-9", env.queue.messages[0].RequestID)
}

func TestCreateQueueFailureKeepsRecordPending(t *testing.T) {
	env := newTestEnv(t)
	env.queue.err = errors.New("queue down")

	w, err := env.svc.Create(context.Background(), docxInput("acct-1"))
	require.NoError(t, err)

	stored, err := env.repo.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.ConversionStatus)
}

func TestCreateRejectsInvalidFileBeforeStorage(t *testing.T) {
	cases := map[string]func(in *CreateInput){
		"content type": func(in *CreateInput) { in.DeclaredContentType = "text/plain" },
		"too large":    func(in *CreateInput) { in.Size = MaxFileSize + 1 },
		"no body":      func(in *CreateInput) { in.Body = nil },
		"no name":      func(in *CreateInput) { in.FileName = "  " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			in := pdfInput("acct-1", samplePDF(t, "x"))
			mutate(&in)

			_, err := env.svc.Create(context.Background(), in)
			require.ErrorIs(t, err, ErrInvalidFile)
			assert.Equal(t, 0, countFiles(t, env.dir))
		})
	}
}

func TestCreateRejectsActualOversizeBody(t *testing.T) {
	env := newTestEnv(t)
	big := bytes.Repeat([]byte("a"), int(MaxFileSize)+10)
	in := pdfInput("acct-1", []byte("%PDF-"))
	in.Size = 5
	in.Body = bytes.NewReader(big)

	_, err := env.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidFile)
	assert.Equal(t, 0, countFiles(t, env.dir))
}

func TestCreateRejectsInvalidMetadata(t *testing.T) {
	cases := map[string]func(in *CreateInput){
		"title":       func(in *CreateInput) { in.Title = "" },
		"authors":     func(in *CreateInput) { in.Authors = " " },
		"early year":  func(in *CreateInput) { in.PublicationYear = 999 },
		"future year": func(in *CreateInput) { in.PublicationYear = fixedNow.Year() + 2 },
		"no uploader": func(in *CreateInput) { in.UploaderID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			in := pdfInput("acct-1", samplePDF(t, "x"))
			mutate(&in)

			_, err := env.svc.Create(context.Background(), in)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, 0, countFiles(t, env.dir))
		})
	}
}

func TestCreateRemovesStoredFileWhenInsertFails(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Repo = failingCreateRepo{MemoryRepo: env.repo}

	_, err := env.svc.Create(context.Background(), pdfInput("acct-1", samplePDF(t, "x")))
	require.Error(t, err)
	assert.Equal(t, 0, countFiles(t, env.dir))
}

func TestToggleReactionFollowsCallParity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, pdfInput("owner", samplePDF(t, "x")))
	require.NoError(t, err)

	res, err := env.svc.ToggleReaction(ctx, w.ID, "acct-a")
	require.NoError(t, err)
	assert.Equal(t, ReactionResult{Outcome: ReactionAdded, Count: 1}, res)

	res, err = env.svc.ToggleReaction(ctx, w.ID, "acct-a")
	require.NoError(t, err)
	assert.Equal(t, ReactionResult{Outcome: ReactionRemoved, Count: 0}, res)

	res, err = env.svc.ToggleReaction(ctx, w.ID, "acct-a")
	require.NoError(t, err)
	assert.Equal(t, ReactionResult{Outcome: ReactionAdded, Count: 1}, res)

	res, err = env.svc.ToggleReaction(ctx, w.ID, "acct-b")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)

	state, err := env.svc.ReactionState(ctx, []string{w.ID}, "acct-a")
	require.NoError(t, err)
	assert.Equal(t, ReactionInfo{Count: 2, HasReacted: true}, state[w.ID])

	_, err = env.svc.ToggleReaction(ctx, "missing", "acct-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleReactionConcurrentCallsKeepParity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, pdfInput("owner", samplePDF(t, "x")))
	require.NoError(t, err)

	const calls = 51
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.ToggleReaction(ctx, w.ID, "acct-a"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := env.svc.ReactionState(ctx, []string{w.ID}, "acct-a")
	require.NoError(t, err)
	assert.Equal(t, ReactionInfo{Count: calls % 2, HasReacted: calls%2 == 1}, state[w.ID])
}

func TestMalformedWorkIDIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, pdfInput("owner", samplePDF(t, "x")))
	require.NoError(t, err)

	for _, id := range []string{"abc", "", "  ", "12345", w.ID + "x", "'; drop table works; --"} {
		_, err := env.svc.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, "get %q", id)

		_, err = env.svc.ToggleReaction(ctx, id, "acct-a")
		assert.ErrorIs(t, err, ErrNotFound, "toggle %q", id)

		err = env.svc.Delete(ctx, id, "owner")
		assert.ErrorIs(t, err, ErrNotFound, "delete %q", id)

		_, err = env.svc.ReportConversion(ctx, id, StatusProcessing, 10, nil)
		assert.ErrorIs(t, err, ErrNotFound, "report %q", id)

		_, _, err = env.svc.ResolveServable(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, "resolve %q", id)
	}

	got, err := env.svc.Get(ctx, strings.ToUpper(w.ID))
	require.NoError(t, err, "ids are canonicalized before lookup")
	assert.Equal(t, w.ID, got.ID)
}

func TestReportConversionRepeatedProgressIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)

	first, err := env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 40, nil)
	require.NoError(t, err)
	second, err := env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 40, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, StatusProcessing, second.ConversionStatus)
	assert.Equal(t, 40, second.ConversionProgress)
}

func TestReportConversionRejectsProgressRegression(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)

	_, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 30, nil)
	require.NoError(t, err)
	_, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 20, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := env.repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.ConversionProgress)
}

func TestDocxConversionServesConvertedPDF(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)
	require.Equal(t, StatusPending, w.ConversionStatus)

	w, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 0, nil)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, w.ConversionStatus)

	pdf := samplePDF(t, "converted")
	w, err = env.svc.ReportConversion(ctx, w.ID, StatusCompleted, 100, bytes.NewReader(pdf))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, w.ConversionStatus)
	assert.Equal(t, 100, w.ConversionProgress)
	assert.True(t, w.HasConverted())

	servable, _, err := env.svc.ResolveServable(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", servable.Filename)
	assert.Equal(t, ContentTypePDF, servable.ContentType)
	assert.True(t, servable.Converted)
	assert.Equal(t, pdf, readAll(t, servable.Body))
}

func TestPDFUploadServesOriginal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	body := samplePDF(t, "original")
	w, err := env.svc.Create(ctx, pdfInput("owner", body))
	require.NoError(t, err)

	servable, _, err := env.svc.ResolveServable(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", servable.Filename)
	assert.False(t, servable.Converted)
	assert.Equal(t, body, readAll(t, servable.Body))
}

func TestFailedConversionFallsBackToOriginal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)

	_, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 10, nil)
	require.NoError(t, err)
	w, err = env.svc.ReportConversion(ctx, w.ID, StatusFailed, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, w.ConversionStatus)

	servable, _, err := env.svc.ResolveServable(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.docx", servable.Filename)
	assert.Equal(t, ContentTypeDOCX, servable.ContentType)
	_ = readAll(t, servable.Body)

	_, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 50, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReportConversionCompletedValidatesFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)
	_, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 90, nil)
	require.NoError(t, err)
	before := countFiles(t, env.dir)

	_, err = env.svc.ReportConversion(ctx, w.ID, StatusCompleted, 100, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.svc.ReportConversion(ctx, w.ID, StatusCompleted, 100, bytes.NewReader([]byte("not a pdf")))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, before, countFiles(t, env.dir))

	stored, err := env.repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, stored.ConversionStatus)
}

func TestReportConversionAfterCompletionKeepsFirstFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)
	_, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 0, nil)
	require.NoError(t, err)
	first := samplePDF(t, "first")
	done, err := env.svc.ReportConversion(ctx, w.ID, StatusCompleted, 100, bytes.NewReader(first))
	require.NoError(t, err)
	files := countFiles(t, env.dir)

	_, err = env.svc.ReportConversion(ctx, w.ID, StatusCompleted, 100, bytes.NewReader(samplePDF(t, "second")))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, files, countFiles(t, env.dir))

	servable, _, err := env.svc.ResolveServable(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, first, readAll(t, servable.Body))
	assert.Equal(t, done.ConvertedKey, mustGet(t, env, w.ID).ConvertedKey)
}

func TestReportConversionForDeletedWork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)
	require.NoError(t, env.svc.Delete(ctx, w.ID, "owner"))

	_, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 10, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.ReportConversion(ctx, w.ID, StatusCompleted, 100, bytes.NewReader(samplePDF(t, "late")))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, countFiles(t, env.dir))
}

func TestDeleteRemovesRecordBothFilesAndReactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := convertedWork(t, env)
	_, err := env.svc.ToggleReaction(ctx, w.ID, "fan")
	require.NoError(t, err)
	require.Equal(t, 2, countFiles(t, env.dir))

	require.NoError(t, env.svc.Delete(ctx, w.ID, "owner"))

	_, err = env.repo.Get(ctx, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, countFiles(t, env.dir))
	state, err := env.svc.ReactionState(ctx, []string{w.ID}, "fan")
	require.NoError(t, err)
	assert.Equal(t, ReactionInfo{}, state[w.ID])
}

func TestDeleteRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, pdfInput("owner", samplePDF(t, "x")))
	require.NoError(t, err)

	err = env.svc.Delete(ctx, w.ID, "intruder")
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, countFiles(t, env.dir))

	err = env.svc.Delete(ctx, "missing", "owner")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteStagingFailureLeavesEverythingIntact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := convertedWork(t, env)
	env.svc.Store = &faultyStore{ObjectStore: env.store, failRenameOn: "converted/"}

	err := env.svc.Delete(ctx, w.ID, "owner")
	require.Error(t, err)

	assertIntact(t, env, w)
}

func TestDeleteRowFailureRestoresStagedFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := convertedWork(t, env)
	env.svc.Repo = failingDeleteRepo{MemoryRepo: env.repo}

	err := env.svc.Delete(ctx, w.ID, "owner")
	require.Error(t, err)

	assertIntact(t, env, w)
}

func TestResolveServableReportsMissingArtifact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.svc.Create(ctx, pdfInput("owner", samplePDF(t, "x")))
	require.NoError(t, err)
	require.NoError(t, env.store.Delete(ctx, w.OriginalKey))

	_, _, err = env.svc.ResolveServable(ctx, w.ID)
	assert.ErrorIs(t, err, ErrArtifactMissing)

	_, _, err = env.svc.ResolveServable(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploaderStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, err := env.svc.Create(ctx, pdfInput("owner", samplePDF(t, "a")))
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, docxInput("someone-else"))
	require.NoError(t, err)
	_, err = env.svc.ToggleReaction(ctx, a.ID, "fan-1")
	require.NoError(t, err)
	_, err = env.svc.ToggleReaction(ctx, a.ID, "fan-2")
	require.NoError(t, err)

	stats, err := env.svc.UploaderStats(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, UploaderStats{Uploads: 2, Reactions: 2}, stats)
}

func TestListRejectsUnknownFileType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.List(context.Background(), ListQuery{FileType: "txt"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func convertedWork(t *testing.T, env *testEnv) Work {
	t.Helper()
	ctx := context.Background()
	w, err := env.svc.Create(ctx, docxInput("owner"))
	require.NoError(t, err)
	_, err = env.svc.ReportConversion(ctx, w.ID, StatusProcessing, 0, nil)
	require.NoError(t, err)
	w, err = env.svc.ReportConversion(ctx, w.ID, StatusCompleted, 100, bytes.NewReader(samplePDF(t, "done")))
	require.NoError(t, err)
	return w
}

func mustGet(t *testing.T, env *testEnv, id string) Work {
	t.Helper()
	w, err := env.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return w
}

func assertIntact(t *testing.T, env *testEnv, w Work) {
	t.Helper()
	ctx := context.Background()
	stored, err := env.repo.Get(ctx, w.ID)
	require.NoError(t, err, "record must survive a failed delete")
	assert.Equal(t, w.ID, stored.ID)

	for _, key := range []string{w.OriginalKey, w.ConvertedKey} {
		rc, err := env.store.Open(ctx, key)
		require.NoError(t, err, "artifact %s must survive a failed delete", key)
		_ = readAll(t, rc)
	}
	assert.Equal(t, 2, countFiles(t, env.dir))
}
