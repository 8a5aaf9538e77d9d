package handler

import (
	"strconv"

	"balanceledger/internal/service"
	"balanceledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PreviewPromo 充值前预览可用活动
// GET /api/v1/promos/preview?user_id=xxx&amount=100.00
func (h *Handler) PreviewPromo(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	preview, err := h.promo.Preview(c.Request.Context(), userID, amount)
	if err != nil {
		response.UserError(c, err)
		return
	}
	response.Success(c, preview)
}

// ListPromos GET /api/v1/admin/promos?status=enabled&page=1&page_size=20
func (h *Handler) ListPromos(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	promos, total, err := h.promo.List(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      promos,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CreatePromo POST /api/v1/admin/promos
func (h *Handler) CreatePromo(c *gin.Context) {
	var in service.PromoInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	promo, err := h.promo.Create(c.Request.Context(), &in)
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, promo)
}

// GetPromo GET /api/v1/admin/promos/:id
func (h *Handler) GetPromo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	promo, err := h.promo.Get(c.Request.Context(), id)
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, promo)
}

// UpdatePromo PUT /api/v1/admin/promos/:id
func (h *Handler) UpdatePromo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.PromoInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	promo, err := h.promo.Update(c.Request.Context(), id, &in)
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, promo)
}

// SetPromoStatus POST /api/v1/admin/promos/:id/status
func (h *Handler) SetPromoStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required,oneof=enabled disabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.promo.SetStatus(c.Request.Context(), id, body.Status); err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "status": body.Status})
}

// ListPromoUsages GET /api/v1/admin/promos/:id/usages
func (h *Handler) ListPromoUsages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	usages, total, err := h.promo.ListUsages(c.Request.Context(), id, page, pageSize)
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      usages,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}
