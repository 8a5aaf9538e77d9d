package handler

import (
	"strconv"
	"time"

	"balanceledger/internal/model"
	"balanceledger/internal/repository"
	"balanceledger/internal/service"
	"balanceledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Services handler 依赖的服务
type Services struct {
	Processor  *service.TransactionProcessor
	Balance    *service.BalanceService
	Promo      *service.PromoService
	Audit      *service.AuditService
	Thresholds *service.ThresholdProvider
}

// Handler 统一处理器
type Handler struct {
	processor  *service.TransactionProcessor
	balance    *service.BalanceService
	promo      *service.PromoService
	audit      *service.AuditService
	thresholds *service.ThresholdProvider
}

func NewHandler(s Services) *Handler {
	return &Handler{
		processor:  s.Processor,
		balance:    s.Balance,
		promo:      s.Promo,
		audit:      s.Audit,
		thresholds: s.Thresholds,
	}
}

// ============================================================
// 余额查询
// ============================================================

// GetBalance 查询用户余额
// GET /api/v1/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	balance, err := h.balance.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.UserError(c, err)
		return
	}
	response.Success(c, balance)
}

// ListLogs 流水分页查询
// GET /api/v1/balance/logs?user_id=xxx&type=recharge&start=RFC3339&end=RFC3339&page=1&page_size=20
func (h *Handler) ListLogs(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	filter := repository.LedgerFilter{
		UserID: userID,
		Type:   model.EntryType(c.Query("type")),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	var err error
	if filter.Start, err = queryTime(c, "start"); err != nil {
		response.ParamError(c, "start 参数错误，需为 RFC3339")
		return
	}
	if filter.End, err = queryTime(c, "end"); err != nil {
		response.ParamError(c, "end 参数错误，需为 RFC3339")
		return
	}

	logs, total, err := h.balance.ListLogs(c.Request.Context(), filter)
	if err != nil {
		response.UserError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      logs,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// GetLog 单条流水
// GET /api/v1/balance/logs/:txn_no
func (h *Handler) GetLog(c *gin.Context) {
	entry, err := h.balance.GetLog(c.Request.Context(), c.Param("txn_no"))
	if err != nil {
		response.UserError(c, err)
		return
	}
	response.Success(c, entry)
}

// ============================================================
// 余额交易
// ============================================================

// TxBody 交易请求
type TxBody struct {
	UserID         int64           `json:"user_id" binding:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount"`
	Remark         string          `json:"remark" binding:"max=256"`
	RefNo          string          `json:"ref_no" binding:"max=64"`
	IdempotencyKey string          `json:"idempotency_key" binding:"max=64"`
}

func (h *Handler) process(c *gin.Context, t model.EntryType, admin bool) {
	var body TxBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if body.IdempotencyKey == "" {
		body.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	req := service.TxRequest{
		UserID:         body.UserID,
		Amount:         body.Amount,
		Type:           t,
		Remark:         body.Remark,
		RefNo:          body.RefNo,
		IdempotencyKey: body.IdempotencyKey,
	}
	if admin {
		req.Operator = c.GetHeader("X-Operator")
	}

	result, err := h.processor.Process(c.Request.Context(), req)
	if err != nil {
		if admin {
			response.AdminError(c, err)
		} else {
			response.UserError(c, err)
		}
		return
	}
	response.Success(c, result)
}

// Recharge 充值到账，由支付回调流程调用
// POST /api/v1/balance/recharge
func (h *Handler) Recharge(c *gin.Context) {
	h.process(c, model.EntryTypeRecharge, false)
}

// Consume 消费扣款
// POST /api/v1/balance/consume
func (h *Handler) Consume(c *gin.Context) {
	h.process(c, model.EntryTypeConsume, false)
}

// Refund 退款入账
// POST /api/v1/balance/refund
func (h *Handler) Refund(c *gin.Context) {
	h.process(c, model.EntryTypeRefund, false)
}

// Adjust 管理员调账，金额带符号，不参与活动
// POST /api/v1/admin/balance/adjust
func (h *Handler) Adjust(c *gin.Context) {
	h.process(c, model.EntryTypeAdjust, true)
}

// Reward 管理员发放奖励
// POST /api/v1/admin/balance/reward
func (h *Handler) Reward(c *gin.Context) {
	h.process(c, model.EntryTypeReward, true)
}

type userBody struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

// Freeze 冻结账户
// POST /api/v1/admin/balance/freeze
func (h *Handler) Freeze(c *gin.Context) {
	var body userBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	balance, err := h.balance.Freeze(c.Request.Context(), body.UserID, c.GetHeader("X-Operator"))
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, balance)
}

// Unfreeze 解冻账户
// POST /api/v1/admin/balance/unfreeze
func (h *Handler) Unfreeze(c *gin.Context) {
	var body userBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	balance, err := h.balance.Unfreeze(c.Request.Context(), body.UserID, c.GetHeader("X-Operator"))
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, balance)
}

// Audit 校验单个用户的流水链路
// GET /api/v1/admin/balance/audit?user_id=xxx
func (h *Handler) Audit(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	report, err := h.audit.VerifyChain(c.Request.Context(), userID)
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, gin.H{
		"report":     report,
		"consistent": report.Consistent(),
	})
}

// ============================================================
// 余额配置
// ============================================================

// GetConfig GET /api/v1/admin/balance/config
func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.thresholds.Current(c.Request.Context())
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, cfg)
}

// UpdateConfig PUT /api/v1/admin/balance/config
func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg model.BalanceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	updated, err := h.thresholds.Update(c.Request.Context(), &cfg)
	if err != nil {
		response.AdminError(c, err)
		return
	}
	response.Success(c, updated)
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
