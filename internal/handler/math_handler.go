package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-quiz/internal/mathrender"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

// MathHandler exposes the math pipeline for authoring previews.
type MathHandler struct {
	mathService *service.MathService
}

// NewMathHandler creates a new MathHandler.
func NewMathHandler(mathService *service.MathService) *MathHandler {
	return &MathHandler{mathService: mathService}
}

// RenderMath godoc
// POST /api/v1/math/render
// Returns every pipeline stage for the given text.
func (h *MathHandler) RenderMath(c *gin.Context) {
	var req model.RenderMathRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, fields)
		return
	}

	res := h.mathService.Preview(req.Text)
	response.Success(c, http.StatusOK, gin.H{
		"normalized": res.Normalized,
		"tokens":     res.Tokens,
		"html":       res.HTML,
		"errors":     countErrors(res),
	})
}

// countErrors counts math tokens that fell back to their source text.
func countErrors(res mathrender.Result) int {
	n := 0
	for _, node := range res.Nodes {
		if node.Error {
			n++
		}
	}
	return n
}
