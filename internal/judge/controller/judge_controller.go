package controller

import (
	"strconv"

	"hsoj/internal/judge/service"
	"hsoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitRequest is the body of a new submission.
type SubmitRequest struct {
	UserID    int64  `json:"user_id"`
	ProblemID int64  `json:"problem_id" binding:"required"`
	Language  string `json:"language" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// SubmitResponse carries the id of an accepted submission.
type SubmitResponse struct {
	SubmissionID int64 `json:"submission_id"`
}

// JudgeController handles submission and status requests.
type JudgeController struct {
	submit *service.SubmitService
}

// NewJudgeController creates a new controller.
func NewJudgeController(submit *service.SubmitService) *JudgeController {
	return &JudgeController{submit: submit}
}

// RegisterRoutes mounts the judge endpoints under /api/v1/judge. submitMW
// runs in front of the submit handler only.
func (h *JudgeController) RegisterRoutes(r gin.IRouter, submitMW ...gin.HandlerFunc) {
	g := r.Group("/api/v1/judge")
	g.POST("/submissions", append(submitMW, h.Submit)...)
	g.GET("/submissions/:id", h.GetStatus)
	g.GET("/languages", h.Languages)
}

// Submit accepts a submission for judging.
func (h *JudgeController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	id, err := h.submit.Submit(c.Request.Context(), service.SubmitInput{
		UserID:    req.UserID,
		ProblemID: req.ProblemID,
		Language:  req.Language,
		Code:      req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, SubmitResponse{SubmissionID: id})
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.submit.GetStatus(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Languages lists the languages submissions may use.
func (h *JudgeController) Languages(c *gin.Context) {
	response.Success(c, gin.H{"languages": h.submit.Languages()})
}
