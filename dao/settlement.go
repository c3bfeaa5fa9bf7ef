package dao

import (
	"context"

	"nft_auction/model"

	"gorm.io/gorm"
)

// SettlementDAO 结算审计记录查询/落库
type SettlementDAO struct {
	db *gorm.DB
}

// NewSettlementDAO 创建结算记录DAO
func NewSettlementDAO(db *gorm.DB) *SettlementDAO {
	return &SettlementDAO{db: db}
}

// Create 写入结算审计记录（MQ消费者调用，SettleNo唯一索引保证重复消费幂等）
func (d *SettlementDAO) Create(record *model.SettlementRecord) error {
	return d.db.Create(record).Error
}

// ExistsForAuction 该拍卖是否已有审计记录（消费侧重放保护）
func (d *SettlementDAO) ExistsForAuction(auctionID uint64) (bool, error) {
	var total int64
	err := d.db.Model(&model.SettlementRecord{}).Where("auction_id = ?", auctionID).Count(&total).Error
	return total > 0, err
}

// ListReq 查询结算记录请求
type ListReq struct {
	UserAddr  string // 卖家/中拍者地址
	AuctionID uint64
	Page      int
	PageSize  int
}

// List 分页查询结算记录
func (d *SettlementDAO) List(ctx context.Context, req ListReq) ([]model.SettlementRecord, int64, error) {
	var records []model.SettlementRecord
	var total int64

	// 构建查询条件
	query := d.db.WithContext(ctx).Model(&model.SettlementRecord{})
	if req.UserAddr != "" {
		query = query.Where("seller = ? OR winner = ?", req.UserAddr, req.UserAddr)
	}
	if req.AuctionID > 0 {
		query = query.Where("auction_id = ?", req.AuctionID)
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("settled_at DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
