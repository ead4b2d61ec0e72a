package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"contest-settlement/internal/app"
	"contest-settlement/internal/commitment"
	"contest-settlement/internal/domain"
)

type ContestHandler struct {
	service *app.ContestService
}

func NewContestHandler(service *app.ContestService) *ContestHandler {
	return &ContestHandler{service: service}
}

type createContestRequest struct {
	domain.ContestParams
	Questions []domain.Question `json:"questions"`
}

type answerKeyRequest struct {
	Questions []domain.Question `json:"questions"`
}

type commitRequest struct {
	HashKind  string            `json:"hashKind"`
	Questions []domain.Question `json:"questions"`
}

type commitResponse struct {
	HashKind string                 `json:"hashKind"`
	Root     domain.Digest          `json:"root"`
	Leaves   []commitment.LeafProof `json:"leaves"`
}

type playerRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

type donateRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

type commissionRequest struct {
	CommissionBps uint16 `json:"commissionBps"`
}

type feesRequest struct {
	PlatformFeeBps uint16 `json:"platformFeeBps"`
	Treasury       string `json:"treasury"`
}

// scoreResponse reports a submission's score without its per-answer
// verdicts, which stay hidden until settlement.
type scoreResponse struct {
	PlayerID   string    `json:"playerId"`
	NumCorrect int       `json:"numCorrect"`
	Questions  int       `json:"questions"`
	FinishedAt time.Time `json:"finishedAt"`
}

func newScoreResponse(s domain.ScoredSubmission) scoreResponse {
	return scoreResponse{
		PlayerID:   s.PlayerID,
		NumCorrect: s.NumCorrect,
		Questions:  len(s.Answers),
		FinishedAt: s.FinishedAt,
	}
}

func (h *ContestHandler) Create(c *gin.Context) {
	var req createContestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := h.service.CreateContest(c.Request.Context(), req.ContestParams, req.Questions)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *ContestHandler) Get(c *gin.Context) {
	view, err := h.service.Contest(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ContestHandler) RegisterAnswerKey(c *gin.Context) {
	var req answerKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.service.RegisterAnswerKey(c.Request.Context(), c.Param("id"), req.Questions); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ContestHandler) Join(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "playerId is required")
		return
	}
	view, err := h.service.Join(c.Request.Context(), c.Param("id"), req.PlayerID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ContestHandler) Donate(c *gin.Context) {
	var req donateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "amount must be positive")
		return
	}
	view, err := h.service.Donate(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ContestHandler) UpdateCommission(c *gin.Context) {
	var req commissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := h.service.UpdateCommission(c.Request.Context(), c.Param("id"), req.CommissionBps)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ContestHandler) Submit(c *gin.Context) {
	var sub domain.PlayerSubmission
	if err := c.ShouldBindJSON(&sub); err != nil || sub.PlayerID == "" {
		jsonError(c, http.StatusBadRequest, "Invalid submission")
		return
	}
	scored, err := h.service.Submit(c.Request.Context(), c.Param("id"), sub)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newScoreResponse(scored))
}

func (h *ContestHandler) Settle(c *gin.Context) {
	settlement, err := h.service.Settle(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func (h *ContestHandler) Claim(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "playerId is required")
		return
	}
	p, err := h.service.Claim(c.Request.Context(), c.Param("id"), req.PlayerID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ContestHandler) Close(c *gin.Context) {
	if err := h.service.Close(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ContestHandler) Results(c *gin.Context) {
	results, err := h.service.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *ContestHandler) Proofs(c *gin.Context) {
	answers, err := h.service.Proofs(c.Request.Context(), c.Param("id"), c.Param("player"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, answers)
}

// Commit computes the root and proofs for an answer key without storing it.
func (h *ContestHandler) Commit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	hasher, err := commitment.NewHasher(commitment.HashKind(req.HashKind))
	if err != nil {
		jsonError(c, http.StatusBadRequest, err.Error())
		return
	}
	tree, err := commitment.Commit(hasher, req.Questions)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, commitResponse{
		HashKind: string(hasher.Kind()),
		Root:     tree.Root(),
		Leaves:   tree.Proofs(),
	})
}

func (h *ContestHandler) Fees(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Fees())
}

func (h *ContestHandler) UpdateFees(c *gin.Context) {
	var req feesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	snap, err := h.service.UpdateFees(req.PlatformFeeBps, req.Treasury)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
