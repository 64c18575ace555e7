package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/reelnotes-backend/internal/data/repos/jobs"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

// maxUploadBytes bounds one multipart upload (video + transcript).
const maxUploadBytes = 512 << 20

type JobHandler struct {
	log   *logger.Logger
	repo  jobs.JobRepo
	store services.BlobStore
}

func NewJobHandler(baseLog *logger.Logger, repo jobs.JobRepo, store services.BlobStore) *JobHandler {
	return &JobHandler{
		log:   baseLog.With("handler", "JobHandler"),
		repo:  repo,
		store: store,
	}
}

// POST /api/jobs
// Multipart form with a "video" file and a "transcript" file. The job is
// stored as uploaded; a worker picks it up asynchronously.
func (h *JobHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	videoFile, err := c.FormFile("video")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_video", err)
		return
	}
	transcriptFile, err := c.FormFile("transcript")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_transcript", err)
		return
	}

	jobID := uuid.New()
	videoKey := fmt.Sprintf("jobs/%s/source/video.mp4", jobID)
	transcriptKey := fmt.Sprintf("jobs/%s/source/transcript.txt", jobID)

	if err := h.storeUpload(c, videoFile, videoKey); err != nil {
		RespondError(c, http.StatusInternalServerError, "store_video", err)
		return
	}
	if err := h.storeUpload(c, transcriptFile, transcriptKey); err != nil {
		RespondError(c, http.StatusInternalServerError, "store_transcript", err)
		return
	}

	now := time.Now().UTC()
	job := &types.Job{
		ID:            jobID,
		Status:        types.JobStatusUploaded,
		VideoKey:      videoKey,
		TranscriptKey: transcriptKey,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := h.repo.Create(dbctx.Context{Ctx: c.Request.Context()}, job); err != nil {
		RespondError(c, http.StatusInternalServerError, "create_job", err)
		return
	}

	h.log.Info("job uploaded", "job_id", jobID.String(), "video_size", videoFile.Size)
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (h *JobHandler) storeUpload(c *gin.Context, fh *multipart.FileHeader, key string) error {
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	return h.store.Put(c.Request.Context(), key, f)
}

// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.repo.GetByID(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", types.ErrNotFound)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/cancel
// Cancellation is cooperative: a processing job stops at its next stage
// boundary; work already committed to the ledger stays.
func (h *JobHandler) Cancel(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	for _, from := range []string{types.JobStatusUploaded, types.JobStatusProcessing} {
		ok, err := h.repo.Transition(dbc, jobID, from, types.JobStatusCancelled, nil)
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		if ok {
			h.log.Info("job cancelled", "job_id", jobID.String(), "was", from)
			RespondOK(c, gin.H{"cancelled": true})
			return
		}
	}
	RespondError(c, http.StatusConflict, "not_cancellable", fmt.Errorf("job is not uploaded or processing"))
}
