package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/reelnotes-backend/internal/data/repos/testutil"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
)

func testRepo(t *testing.T) (JobRepo, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRepo(db, testutil.Logger(t))
	return repo, dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func newJob() *types.Job {
	now := time.Now().UTC()
	return &types.Job{
		ID:            uuid.New(),
		Status:        types.JobStatusUploaded,
		VideoKey:      "jobs/x/source/video.mp4",
		TranscriptKey: "jobs/x/source/transcript.txt",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestJobCreateAndGet(t *testing.T) {
	repo, dbc := testRepo(t)
	job := newJob()
	if _, err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Status != types.JobStatusUploaded {
		t.Fatalf("got = %+v", got)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("missing job should be nil, nil; got %+v, %v", missing, err)
	}
}

func TestJobTransitionGuard(t *testing.T) {
	repo, dbc := testRepo(t)
	job := newJob()
	if _, err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.Transition(dbc, job.ID, types.JobStatusUploaded, types.JobStatusProcessing, nil)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	// Second claim races and loses: the row is no longer uploaded.
	ok, err = repo.Transition(dbc, job.ID, types.JobStatusUploaded, types.JobStatusProcessing, nil)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("second claim succeeded; guard did not hold")
	}

	got, _ := repo.GetByID(dbc, job.ID)
	if got.Status != types.JobStatusProcessing {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestJobProgressMonotonic(t *testing.T) {
	repo, dbc := testRepo(t)
	job := newJob()
	if _, err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Transition(dbc, job.ID, types.JobStatusUploaded, types.JobStatusProcessing, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := repo.SetProgress(dbc, job.ID, types.StageVerifying, 45); err != nil {
		t.Fatalf("SetProgress(45): %v", err)
	}
	// A stale lower milestone must not move progress backwards.
	if err := repo.SetProgress(dbc, job.ID, types.StageSampling, 10); err != nil {
		t.Fatalf("SetProgress(10): %v", err)
	}

	got, _ := repo.GetByID(dbc, job.ID)
	if got.Progress != 45 {
		t.Fatalf("progress = %d, want 45 (stale write dropped)", got.Progress)
	}
	if got.Stage != types.StageVerifying {
		t.Fatalf("stage = %q", got.Stage)
	}
}

func TestJobNextUploadedOrdering(t *testing.T) {
	repo, dbc := testRepo(t)

	older := newJob()
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newJob()
	if _, err := repo.Create(dbc, newer); err != nil {
		t.Fatalf("Create newer: %v", err)
	}
	if _, err := repo.Create(dbc, older); err != nil {
		t.Fatalf("Create older: %v", err)
	}

	next, err := repo.NextUploaded(dbc)
	if err != nil {
		t.Fatalf("NextUploaded: %v", err)
	}
	if next == nil || next.ID != older.ID {
		t.Fatalf("next = %+v, want oldest uploaded job", next)
	}

	if _, err := repo.Transition(dbc, older.ID, types.JobStatusUploaded, types.JobStatusCancelled, nil); err != nil {
		t.Fatalf("cancel older: %v", err)
	}
	next, err = repo.NextUploaded(dbc)
	if err != nil {
		t.Fatalf("NextUploaded after cancel: %v", err)
	}
	if next == nil || next.ID != newer.ID {
		t.Fatalf("next after cancel = %+v", next)
	}
}

func TestJobTransitionRejectsIllegalPair(t *testing.T) {
	repo, dbc := testRepo(t)
	job := newJob()
	job.Status = types.JobStatusCompleted
	if _, err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The state machine is one-directional; the repo refuses the pair
	// before touching the row.
	ok, err := repo.Transition(dbc, job.ID, types.JobStatusCompleted, types.JobStatusProcessing, nil)
	if err == nil || ok {
		t.Fatalf("completed -> processing allowed: ok=%v err=%v", ok, err)
	}
	if _, err := repo.Transition(dbc, job.ID, types.JobStatusFailed, types.JobStatusUploaded, nil); err == nil {
		t.Fatalf("failed -> uploaded allowed")
	}

	got, _ := repo.GetByID(dbc, job.ID)
	if got.Status != types.JobStatusCompleted {
		t.Fatalf("status = %q, row must be untouched", got.Status)
	}
}

func TestCanTransition(t *testing.T) {
	legal := [][2]string{
		{types.JobStatusUploaded, types.JobStatusProcessing},
		{types.JobStatusUploaded, types.JobStatusCancelled},
		{types.JobStatusProcessing, types.JobStatusCompleted},
		{types.JobStatusProcessing, types.JobStatusFailed},
		{types.JobStatusProcessing, types.JobStatusCancelled},
	}
	for _, pair := range legal {
		if !types.CanTransition(pair[0], pair[1]) {
			t.Fatalf("%s -> %s should be legal", pair[0], pair[1])
		}
	}
	illegal := [][2]string{
		{types.JobStatusCompleted, types.JobStatusProcessing},
		{types.JobStatusFailed, types.JobStatusProcessing},
		{types.JobStatusCancelled, types.JobStatusUploaded},
		{types.JobStatusUploaded, types.JobStatusCompleted},
	}
	for _, pair := range illegal {
		if types.CanTransition(pair[0], pair[1]) {
			t.Fatalf("%s -> %s should be illegal", pair[0], pair[1])
		}
	}
}
