package http

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/domain"

	"github.com/gin-gonic/gin"
)

const manualSource = "manual"

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type uploadResponse struct {
	Evidence     domain.EvidenceRecord `json:"evidence"`
	Deduplicated bool                  `json:"deduplicated"`
}

type reviewRequest struct {
	Status string `json:"status"`
}

type verifyResponse struct {
	EvidenceID string `json:"evidence_id"`
	Valid      bool   `json:"valid"`
	Expected   string `json:"expected_hash"`
	Actual     string `json:"actual_hash,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type packageRequest struct {
	Client      string `json:"client"`
	Framework   string `json:"framework"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

type packageResponse struct {
	ID                string                    `json:"id"`
	Client            string                    `json:"client"`
	Framework         string                    `json:"framework"`
	PeriodStart       string                    `json:"period_start"`
	PeriodEnd         string                    `json:"period_end"`
	ManifestHash      string                    `json:"manifest_hash"`
	Stats             domain.PackageStats       `json:"stats"`
	IntegrityWarnings []domain.IntegrityWarning `json:"integrity_warnings"`
	ArchivePath       string                    `json:"archive_path,omitempty"`
	CreatedAt         string                    `json:"created_at"`
}

func (s *Server) handleUploadEvidence(c *gin.Context) {
	if !s.requireAPIKey(c) {
		return
	}
	if s.evidence == nil {
		writeError(c, domain.ErrStoreUnavailable)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)
	control := strings.TrimSpace(c.PostForm("control_code"))
	if control == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_EVIDENCE", "control_code is required")
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_EVIDENCE", "file is required")
		return
	}
	f, err := header.Open()
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_EVIDENCE", "unreadable file")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_EVIDENCE", "unreadable file")
		return
	}

	item := domain.EvidenceItem{
		ControlReference: control,
		LogicalName:      header.Filename,
		Category:         manualSource,
		EvidenceType:     c.DefaultPostForm("evidence_type", "manual_upload"),
		Content:          content,
	}
	if item.PeriodStart, err = parseOptionalDate(c.PostForm("period_start")); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PERIOD", "period_start must be YYYY-MM-DD")
		return
	}
	if item.PeriodEnd, err = parseOptionalDate(c.PostForm("period_end")); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PERIOD", "period_end must be YYYY-MM-DD")
		return
	}
	if !item.PeriodEnd.IsZero() {
		if item.PeriodStart.IsZero() {
			item.PeriodStart = item.PeriodEnd
		}
		// The end day is covered in full.
		item.PeriodEnd = item.PeriodEnd.Add(domain.Day - time.Microsecond)
	}
	if uploader := strings.TrimSpace(c.PostForm("uploaded_by")); uploader != "" {
		item.Metadata = map[string]any{"uploaded_by": uploader}
	}

	rec, ref, err := s.evidence.Store(c.Request.Context(), manualSource, domain.CollectionManual, item)
	if err != nil {
		writeError(c, err)
		return
	}
	stored, err := s.evidence.Get(c.Request.Context(), rec.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, uploadResponse{Evidence: stored, Deduplicated: ref.Deduplicated})
}

func (s *Server) handleGetEvidence(c *gin.Context) {
	if s.evidence == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	rec, err := s.evidence.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleVerifyEvidence(c *gin.Context) {
	if s.evidence == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	rec, err := s.evidence.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := verifyResponse{EvidenceID: rec.ID, Expected: rec.ContentHash}
	actual, err := s.evidence.Verify(c.Request.Context(), rec.StoragePath, rec.ContentHash)
	out.Actual = actual
	switch {
	case err == nil:
		out.Valid = true
	case errors.Is(err, domain.ErrContentMismatch):
		out.Reason = "content hash mismatch"
	case errors.Is(err, domain.ErrNotFound):
		out.Reason = "stored content missing"
	default:
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleReviewEvidence(c *gin.Context) {
	if !s.requireAPIKey(c) {
		return
	}
	if s.evidence == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	rec, err := s.evidence.Review(c.Request.Context(), c.Param("id"), domain.ReviewStatus(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDueControls(c *gin.Context) {
	if s.scheduler == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_DATE", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	due, err := s.scheduler.DueControls(c.Request.Context(), asOf, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if due == nil {
		due = []domain.ControlImplementation{}
	}
	c.JSON(http.StatusOK, gin.H{"as_of": domain.DateOf(asOf).Format(time.DateOnly), "controls": due})
}

func (s *Server) handleAssemblePackage(c *gin.Context) {
	if !s.requireAPIKey(c) {
		return
	}
	if s.assembler == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req packageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	start, err := time.Parse(time.DateOnly, req.PeriodStart)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PERIOD", "period_start must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(time.DateOnly, req.PeriodEnd)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PERIOD", "period_end must be YYYY-MM-DD")
		return
	}
	period, err := domain.NewPeriod(start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	pkg, err := s.assembler.Assemble(c.Request.Context(), req.Client, req.Framework, period)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildPackageResponse(pkg))
}

func (s *Server) handleGetPackage(c *gin.Context) {
	if s.packages == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	pkg, err := s.packages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildPackageResponse(pkg))
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

// requireAPIKey guards write endpoints when API_KEY is configured.
func (s *Server) requireAPIKey(c *gin.Context) bool {
	if s.apiKey == "" {
		return true
	}
	key := strings.TrimSpace(c.GetHeader("X-API-Key"))
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key")
		return false
	}
	return true
}

func buildPackageResponse(pkg domain.AuditPackage) packageResponse {
	warnings := pkg.IntegrityWarnings
	if warnings == nil {
		warnings = []domain.IntegrityWarning{}
	}
	return packageResponse{
		ID:                pkg.ID,
		Client:            pkg.Client,
		Framework:         pkg.Framework,
		PeriodStart:       pkg.Period.Start.Format(time.DateOnly),
		PeriodEnd:         pkg.Period.End.Format(time.DateOnly),
		ManifestHash:      pkg.ManifestHash,
		Stats:             pkg.Stats,
		IntegrityWarnings: warnings,
		ArchivePath:       pkg.ArchivePath,
		CreatedAt:         pkg.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func parseOptionalDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		status, code = http.StatusRequestEntityTooLarge, "TOO_LARGE"
	case errors.Is(err, domain.ErrInvalidEvidence):
		status, code = http.StatusBadRequest, "INVALID_EVIDENCE"
	case errors.Is(err, domain.ErrInvalidControl):
		status, code = http.StatusBadRequest, "INVALID_CONTROL"
	case errors.Is(err, domain.ErrInvalidPeriod):
		status, code = http.StatusBadRequest, "INVALID_PERIOD"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyReviewed):
		status, code = http.StatusConflict, "ALREADY_REVIEWED"
	case domain.IsStorageFailure(err), errors.Is(err, domain.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
