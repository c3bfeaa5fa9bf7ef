package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"nft_auction/dao"
	"nft_auction/engine"
	"nft_auction/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuctionHandler 拍卖处理器
type AuctionHandler struct {
	proxy       *engine.Proxy
	nextEngine  engine.Engine // 升级目标引擎（admin接口切换）
	settlements *dao.SettlementDAO
}

// NewAuctionHandler 创建拍卖处理器
func NewAuctionHandler(proxy *engine.Proxy, nextEngine engine.Engine, settlements *dao.SettlementDAO) *AuctionHandler {
	return &AuctionHandler{
		proxy:       proxy,
		nextEngine:  nextEngine,
		settlements: settlements,
	}
}

// CreateAuctionReq 创建拍卖请求体
type CreateAuctionReq struct {
	Seller      string `json:"seller"`
	Duration    int64  `json:"duration"`
	StartPrice  string `json:"start_price"`
	NFTContract string `json:"nft_contract"`
	TokenID     string `json:"token_id"`
	Signature   string `json:"signature"`
}

// PlaceBidReq 出价请求体（amount即附带的竞拍资金，wei单位）
type PlaceBidReq struct {
	Bidder    string `json:"bidder"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

// ClaimReq 领取余额请求体
type ClaimReq struct {
	Addr      string `json:"addr"`
	Signature string `json:"signature"`
}

// CreateAuction 创建拍卖
func (h *AuctionHandler) CreateAuction(c *gin.Context) {
	var req CreateAuctionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Logger.Error("参数绑定失败", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"code": 400,
			"msg":  err.Error(),
		})
		return
	}

	// 签名验签
	data := req.NFTContract + req.TokenID + req.Seller + strconv.FormatInt(req.Duration, 10) + req.StartPrice
	if !utils.VerifySignature(req.Seller, data, req.Signature) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code": 401,
			"msg":  "signature verify failed",
		})
		return
	}

	auctionID, err := h.proxy.CreateAuction(c.Request.Context(), engine.CreateAuctionReq{
		Seller:      req.Seller,
		Duration:    req.Duration,
		StartPrice:  req.StartPrice,
		NFTContract: req.NFTContract,
		TokenID:     req.TokenID,
	})
	if err != nil {
		c.JSON(statusOf(err), gin.H{
			"code": statusOf(err),
			"msg":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
		"data": gin.H{"auction_id": auctionID},
	})
}

// PlaceBid 出价
func (h *AuctionHandler) PlaceBid(c *gin.Context) {
	auctionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": 400,
			"msg":  "invalid auction id",
		})
		return
	}

	var req PlaceBidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Logger.Error("参数绑定失败", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"code": 400,
			"msg":  err.Error(),
		})
		return
	}

	// 签名验签
	data := fmt.Sprintf("%d%s%s", auctionID, req.Bidder, req.Amount)
	if !utils.VerifySignature(req.Bidder, data, req.Signature) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code": 401,
			"msg":  "signature verify failed",
		})
		return
	}

	if err := h.proxy.PlaceBid(c.Request.Context(), auctionID, req.Bidder, req.Amount); err != nil {
		c.JSON(statusOf(err), gin.H{
			"code": statusOf(err),
			"msg":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
	})
}

// EndAuction 结束拍卖（窗口过后任何人可调用）
func (h *AuctionHandler) EndAuction(c *gin.Context) {
	auctionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": 400,
			"msg":  "invalid auction id",
		})
		return
	}

	if err := h.proxy.EndAuction(c.Request.Context(), auctionID); err != nil {
		c.JSON(statusOf(err), gin.H{
			"code": statusOf(err),
			"msg":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
	})
}

// GetAuction 查询拍卖记录
func (h *AuctionHandler) GetAuction(c *gin.Context) {
	auctionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": 400,
			"msg":  "invalid auction id",
		})
		return
	}

	auction, err := h.proxy.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{
			"code": statusOf(err),
			"msg":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
		"data": auction,
	})
}

// Claim 领取可领取余额（被超越退款、卖家结算款）
func (h *AuctionHandler) Claim(c *gin.Context) {
	var req ClaimReq
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Logger.Error("参数绑定失败", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"code": 400,
			"msg":  err.Error(),
		})
		return
	}

	// 签名验签
	if !utils.VerifySignature(req.Addr, "claim"+req.Addr, req.Signature) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code": 401,
			"msg":  "signature verify failed",
		})
		return
	}

	amount, err := h.proxy.Claim(c.Request.Context(), req.Addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code": 500,
			"msg":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
		"data": gin.H{"amount": amount},
	})
}

// GetSettlements 查询结算审计记录
func (h *AuctionHandler) GetSettlements(c *gin.Context) {
	// 解析查询参数
	userAddr := c.Query("user_addr")
	auctionIDStr := c.Query("auction_id")
	pageStr := c.Query("page")
	pageSizeStr := c.Query("page_size")

	// 转换类型
	auctionID, _ := strconv.ParseUint(auctionIDStr, 10, 64)
	page, _ := strconv.Atoi(pageStr)
	if page <= 0 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(pageSizeStr)
	if pageSize <= 0 {
		pageSize = 10
	}

	records, total, err := h.settlements.List(c.Request.Context(), dao.ListReq{
		UserAddr:  userAddr,
		AuctionID: auctionID,
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code": 500,
			"msg":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
		"data": gin.H{
			"list":      records,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		},
	})
}

// Upgrade 管理接口：把对外入口切换到升级版引擎
func (h *AuctionHandler) Upgrade(c *gin.Context) {
	if h.nextEngine == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": 400,
			"msg":  "no upgrade target configured",
		})
		return
	}

	h.proxy.Upgrade(h.nextEngine)
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
		"data": gin.H{"version": h.proxy.Version()},
	})
}

// statusOf 错误到HTTP状态码的映射：
// 参数/出价类 -> 400（重试无意义），时间类 -> 409（等窗口变化后重试），
// 记录不存在 -> 404，其余（托管/资金异常）-> 500（需告警）。
func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrAuctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidDuration),
		errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrBidTooLow),
		errors.Is(err, engine.ErrAssetEscrowed):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrAuctionNotOpen),
		errors.Is(err, engine.ErrAuctionExpired),
		errors.Is(err, engine.ErrAuctionStillRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
