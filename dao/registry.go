package dao

import (
	"context"
	"errors"
	"fmt"

	"nft_auction/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAuctionNotFound 拍卖记录不存在
var ErrAuctionNotFound = errors.New("registry: auction not found")

// AuctionRegistry 拍卖登记处：负责拍卖ID的顺序分配与 id->记录 的只增映射。
// 记录一经写入永不删除（审计留存），列布局跨引擎版本保持稳定。
type AuctionRegistry struct {
	db *gorm.DB
}

// NewAuctionRegistry 创建拍卖登记处
func NewAuctionRegistry(db *gorm.DB) *AuctionRegistry {
	return &AuctionRegistry{db: db}
}

// EnsureCounter 初始化ID计数器（首个拍卖ID为0，程序启动时调用）
func (r *AuctionRegistry) EnsureCounter() error {
	counter := model.AuctionCounter{ID: 1, NextID: 0}
	return r.db.Where(model.AuctionCounter{ID: 1}).FirstOrCreate(&counter).Error
}

// NextID 在事务内分配下一个拍卖ID（顺序递增，永不复用）
// 事务回滚时分配一并回滚，不会对外暴露半创建的记录；
// 计数器行的UPDATE持有行锁，保证并发创建时ID不重复。
func (r *AuctionRegistry) NextID(tx *gorm.DB) (uint64, error) {
	res := tx.Model(&model.AuctionCounter{}).Where("id = 1").
		Update("next_id", gorm.Expr("next_id + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("registry: counter row missing")
	}

	var counter model.AuctionCounter
	if err := tx.First(&counter, "id = 1").Error; err != nil {
		return 0, err
	}
	// NextID已自增，本次分配的ID是自增前的值
	return counter.NextID - 1, nil
}

// Get 按ID查询拍卖记录
func (r *AuctionRegistry) Get(ctx context.Context, seqID uint64) (*model.Auction, error) {
	var auction model.Auction
	if err := r.db.WithContext(ctx).First(&auction, "seq_id = ?", seqID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	return &auction, nil
}

// GetForUpdate 在事务内按ID查询拍卖记录并加行锁（状态机写路径专用）
// SQLite方言不支持FOR UPDATE，其驱动会忽略该子句。
func (r *AuctionRegistry) GetForUpdate(tx *gorm.DB, seqID uint64) (*model.Auction, error) {
	var auction model.Auction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&auction, "seq_id = ?", seqID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	return &auction, nil
}

// Put 在事务内写入/更新拍卖记录的全量字段（仅状态机调用）
// 首个拍卖ID为0，不能走gorm的主键零值推断，按存在性显式选择插入或更新。
func (r *AuctionRegistry) Put(tx *gorm.DB, auction *model.Auction) error {
	var exists int64
	if err := tx.Model(&model.Auction{}).Where("seq_id = ?", auction.SeqID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return tx.Create(auction).Error
	}
	// Select("*")保证零值字段（State=0等）也参与更新
	return tx.Model(&model.Auction{}).Where("seq_id = ?", auction.SeqID).Select("*").Updates(auction).Error
}
