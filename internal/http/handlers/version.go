package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

type VersionHandler struct {
	log    *logger.Logger
	ledger services.VersionLedger
	store  services.BlobStore
}

func NewVersionHandler(baseLog *logger.Logger, ledger services.VersionLedger, store services.BlobStore) *VersionHandler {
	return &VersionHandler{
		log:    baseLog.With("handler", "VersionHandler"),
		ledger: ledger,
		store:  store,
	}
}

// GET /api/jobs/:id/versions
func (h *VersionHandler) List(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	versions, err := h.ledger.ListVersions(c.Request.Context(), jobID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	// History metadata only; artifact content is fetched per version.
	type entry struct {
		VersionNumber     int    `json:"version_number"`
		ParentVersion     *int   `json:"parent_version,omitempty"`
		ChangeDescription string `json:"change_description,omitempty"`
		CreatedAt         string `json:"created_at"`
	}
	out := make([]entry, 0, len(versions))
	for _, v := range versions {
		out = append(out, entry{
			VersionNumber:     v.VersionNumber,
			ParentVersion:     v.ParentVersion,
			ChangeDescription: v.ChangeDescription,
			CreatedAt:         v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	RespondOK(c, gin.H{"versions": out})
}

// GET /api/jobs/:id/versions/:number
// Serves the stored artifact bytes. The document is self-describing; the
// version number and generation time are inside the payload.
func (h *VersionHandler) Download(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		RespondError(c, http.StatusBadRequest, "invalid_version", err)
		return
	}
	version, err := h.ledger.GetVersion(c.Request.Context(), jobID, number)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	raw, err := h.store.Get(c.Request.Context(), version.ArtifactKey)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// GET /api/jobs/:id/images/*key
// Serves a frame image referenced by a document's relative image key.
func (h *VersionHandler) Image(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	prefix := "jobs/" + jobID.String() + "/"
	if !strings.HasPrefix(key, prefix) {
		key = prefix + key
	}
	raw, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", types.ErrNotFound)
		return
	}
	contentType := "image/png"
	if strings.HasSuffix(key, ".jpg") || strings.HasSuffix(key, ".jpeg") {
		contentType = "image/jpeg"
	}
	c.Data(http.StatusOK, contentType, raw)
}
