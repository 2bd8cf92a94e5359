// Package http provides HTTP handlers through which collaborators submit metadata and
// request inclusion proofs.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	capsuleService "github.com/allisson/provenance/internal/capsule/service"
	"github.com/allisson/provenance/internal/canonical"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	"github.com/allisson/provenance/internal/evidence/http/dto"
	evidenceUseCase "github.com/allisson/provenance/internal/evidence/usecase"
	"github.com/allisson/provenance/internal/httputil"
	customValidation "github.com/allisson/provenance/internal/validation"
)

// LedgerReader exposes the read-only ledger state.
type LedgerReader interface {
	ID() string
	Algorithm() canonical.Algorithm
	Snapshot() (string, int, error)
}

// AnchorLister lists stored anchors.
type AnchorLister interface {
	List(ctx context.Context) ([]*anchorDomain.AnchorRecord, error)
}

// KeyExporter exports the public half of every signing key.
type KeyExporter interface {
	ExportPublicKeys() map[string]string
}

// EvidenceHandler handles HTTP requests for evidence admission and proofs.
type EvidenceHandler struct {
	evidenceUseCase evidenceUseCase.EvidenceUseCase
	ledger          LedgerReader
	anchors         AnchorLister
	keys            KeyExporter
	logger          *slog.Logger
}

// NewEvidenceHandler creates a new evidence handler with required dependencies.
func NewEvidenceHandler(
	useCase evidenceUseCase.EvidenceUseCase,
	ledger LedgerReader,
	anchors AnchorLister,
	keys KeyExporter,
	logger *slog.Logger,
) *EvidenceHandler {
	return &EvidenceHandler{
		evidenceUseCase: useCase,
		ledger:          ledger,
		anchors:         anchors,
		keys:            keys,
		logger:          logger,
	}
}

// RegisterRoutes mounts the evidence routes on the group.
func (h *EvidenceHandler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.POST("/evidence", h.AdmitHandler)
	v1.POST("/evidence/batch", h.AdmitBatchHandler)
	v1.POST("/evidence/assess", h.AssessHandler)
	v1.POST("/evidence/:leaf_hash/capsule", h.ProveHandler)
	v1.GET("/ledger", h.LedgerHandler)
	v1.GET("/ledger/integrity", h.VerifyIntegrityHandler)
	v1.POST("/anchors", h.AnchorHandler)
	v1.GET("/anchors", h.ListAnchorsHandler)
	v1.GET("/public-keys", h.PublicKeysHandler)
	v1.POST("/capsules/verify", h.VerifyCapsuleHandler)
}

// bindJSON decodes the request body keeping numbers as json.Number, so metadata reaches
// the canonicalizer with its exact digits instead of a float64 approximation.
func bindJSON(c *gin.Context, v any) error {
	if c.Request.Body == nil {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func (h *EvidenceHandler) bindSubmission(c *gin.Context) (*evidenceDomain.Submission, bool) {
	var req dto.AdmitRequest
	if err := bindJSON(c, &req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return nil, false
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return nil, false
	}
	sub, err := req.ToSubmission()
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return nil, false
	}
	return sub, true
}

// handleError writes blocked admissions with their assessment and anything else through
// the shared error mapping.
func (h *EvidenceHandler) handleError(c *gin.Context, err error) {
	var blocked *evidenceDomain.PolicyBlockedError
	if errors.As(err, &blocked) {
		c.JSON(http.StatusForbidden, dto.MapBlockedError(blocked))
		return
	}
	httputil.HandleErrorGin(c, err, h.logger)
}

// AdmitHandler admits one submission.
// POST /v1/evidence - Returns 201 Created with the admission, 403 when blocked by policy.
func (h *EvidenceHandler) AdmitHandler(c *gin.Context) {
	sub, ok := h.bindSubmission(c)
	if !ok {
		return
	}

	admission, err := h.evidenceUseCase.Admit(c.Request.Context(), sub)
	if err != nil && admission == nil {
		h.handleError(c, err)
		return
	}
	if err != nil {
		// Admitted but not anchored; the anchor can be retried through POST /v1/anchors.
		h.logger.Warn("admission not anchored", slog.String("leaf_hash", admission.LeafHash), slog.Any("error", err))
	}

	c.JSON(http.StatusCreated, admission)
}

// AdmitBatchHandler admits several submissions in request order.
// POST /v1/evidence/batch - Returns 200 OK with one result per submission.
func (h *EvidenceHandler) AdmitBatchHandler(c *gin.Context) {
	var req dto.AdmitBatchRequest
	if err := bindJSON(c, &req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	response := dto.AdmitBatchResponse{Results: make([]dto.BatchItemResponse, len(req.Submissions))}
	subs := make([]*evidenceDomain.Submission, 0, len(req.Submissions))
	positions := make([]int, 0, len(req.Submissions))
	for i := range req.Submissions {
		response.Results[i].Index = i
		item := &req.Submissions[i]
		err := customValidation.WrapValidationError(item.Validate())
		var sub *evidenceDomain.Submission
		if err == nil {
			sub, err = item.ToSubmission()
		}
		if err != nil {
			_, body := httputil.StatusFor(err)
			response.Results[i].Error = &body
			response.Failed++
			continue
		}
		subs = append(subs, sub)
		positions = append(positions, i)
	}

	results, err := h.evidenceUseCase.AdmitBatch(c.Request.Context(), subs)
	if err != nil && results == nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	for j, r := range results {
		item := &response.Results[positions[j]]
		item.Admission = r.Admission
		if r.Err == nil {
			response.Admitted++
			continue
		}
		response.Failed++
		var blocked *evidenceDomain.PolicyBlockedError
		if errors.As(r.Err, &blocked) {
			b := dto.MapBlockedError(blocked)
			item.Blocked = &b
			continue
		}
		_, body := httputil.StatusFor(r.Err)
		item.Error = &body
	}
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, response)
}

// AssessHandler evaluates a submission without admitting it.
// POST /v1/evidence/assess - Returns 200 OK with the risk assessment.
func (h *EvidenceHandler) AssessHandler(c *gin.Context) {
	sub, ok := h.bindSubmission(c)
	if !ok {
		return
	}

	assessment, err := h.evidenceUseCase.Assess(c.Request.Context(), sub)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// ProveHandler returns the evidence capsule of a leaf. Building it may sign an anchor for
// the current root, seal the leaf's policy and publish the capsule, hence POST.
// POST /v1/evidence/:leaf_hash/capsule - Returns 200 OK with the capsule.
func (h *EvidenceHandler) ProveHandler(c *gin.Context) {
	leafHash := c.Param("leaf_hash")
	if !canonical.IsHexDigest(leafHash, h.ledger.Algorithm()) {
		httputil.HandleValidationErrorGin(c, errors.New("leaf_hash must be a lowercase hex digest"), h.logger)
		return
	}

	capsule, err := h.evidenceUseCase.Prove(c.Request.Context(), leafHash)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, capsule)
}

// LedgerHandler returns the current root.
// GET /v1/ledger - Returns 200 OK.
func (h *EvidenceHandler) LedgerHandler(c *gin.Context) {
	root, size, err := h.ledger.Snapshot()
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.LedgerResponse{
		LedgerID:      h.ledger.ID(),
		HashAlgorithm: h.ledger.Algorithm(),
		Root:          root,
		LeafCount:     size,
	})
}

// VerifyIntegrityHandler replays the durable records and checks every anchor.
// GET /v1/ledger/integrity - Returns 200 OK when valid, 409 Conflict with the report otherwise.
func (h *EvidenceHandler) VerifyIntegrityHandler(c *gin.Context) {
	report, err := h.evidenceUseCase.VerifyIntegrity(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	status := http.StatusOK
	if !report.Valid {
		status = http.StatusConflict
	}
	c.JSON(status, report)
}

// AnchorHandler anchors the current root.
// POST /v1/anchors - Returns 201 Created with the anchor.
func (h *EvidenceHandler) AnchorHandler(c *gin.Context) {
	var req dto.AnchorRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	anchor, err := h.evidenceUseCase.AnchorCurrentRoot(c.Request.Context(), req.PolicyID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, anchor)
}

// ListAnchorsHandler lists anchors in commit order.
// GET /v1/anchors?offset=0&limit=50 - Returns 200 OK.
func (h *EvidenceHandler) ListAnchorsHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	anchors, err := h.anchors.List(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ListAnchorsResponse{
		Data:  httputil.Paginate(anchors, offset, limit),
		Total: len(anchors),
	})
}

// PublicKeysHandler exports the public signing keys.
// GET /v1/public-keys - Returns 200 OK.
func (h *EvidenceHandler) PublicKeysHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PublicKeysResponse{Keys: h.keys.ExportPublicKeys()})
}

// VerifyCapsuleHandler verifies a capsule against the exported public keys.
// POST /v1/capsules/verify - Returns 200 OK with the verification result.
func (h *EvidenceHandler) VerifyCapsuleHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	capsule, err := capsuleService.Unmarshal(body)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, capsuleService.Verify(capsule, h.keys.ExportPublicKeys()))
}
