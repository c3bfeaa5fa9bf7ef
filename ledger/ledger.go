package ledger

import (
	"context"
	"errors"
	"fmt"

	"nft_auction/model"
	"nft_auction/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FundsLedger 资金适配器：管理引擎托管的竞拍保证金与pull模式的可领取余额。
// 被超越出价者的资金只记账、绝不主动推送，由本人调用Claim领取，
// 避免收款路径拒收导致新出价被阻塞（重入/拒绝服务防护）。
type FundsLedger struct {
	db *gorm.DB
}

// NewFundsLedger 创建资金适配器
func NewFundsLedger(db *gorm.DB) *FundsLedger {
	return &FundsLedger{db: db}
}

// Deposit 在事务内登记当前最高出价的托管资金（每个拍卖至多一条，换领先者时覆盖）
func (l *FundsLedger) Deposit(tx *gorm.DB, auctionID uint64, bidder, amount string) error {
	var dep model.BidDeposit
	err := tx.Where("auction_id = ?", auctionID).First(&dep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		dep = model.BidDeposit{
			AuctionID: auctionID,
			Bidder:    bidder,
			Amount:    amount,
		}
		return tx.Create(&dep).Error
	}
	if err != nil {
		return err
	}

	dep.Bidder = bidder
	dep.Amount = amount
	return tx.Save(&dep).Error
}

// CreditPending 在事务内累加addr的可领取余额（被超越退款、卖家结算款共用）
func (l *FundsLedger) CreditPending(tx *gorm.DB, addr, amount string) error {
	var pending model.PendingReturn
	err := tx.Where("addr = ?", addr).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pending = model.PendingReturn{
			Addr:   addr,
			Amount: amount,
		}
		return tx.Create(&pending).Error
	}
	if err != nil {
		return err
	}

	sum, err := utils.AddWei(pending.Amount, amount)
	if err != nil {
		return fmt.Errorf("ledger: corrupt pending balance for %s: %w", addr, err)
	}
	pending.Amount = sum
	return tx.Save(&pending).Error
}

// SettleToSeller 在事务内把拍卖的托管保证金转记为卖家可领取余额
// 返回结算金额；保证金记录随之消账。
func (l *FundsLedger) SettleToSeller(tx *gorm.DB, auctionID uint64, seller string) (string, error) {
	var dep model.BidDeposit
	if err := tx.Where("auction_id = ?", auctionID).First(&dep).Error; err != nil {
		return "", fmt.Errorf("ledger: deposit missing for auction %d: %w", auctionID, err)
	}

	if err := l.CreditPending(tx, seller, dep.Amount); err != nil {
		return "", err
	}
	if err := tx.Delete(&dep).Error; err != nil {
		return "", err
	}
	return dep.Amount, nil
}

// Claim 领取addr的全部可领取余额（置零），返回领取金额
// 无可领余额时返回"0"，不视为错误。
func (l *FundsLedger) Claim(ctx context.Context, addr string) (string, error) {
	amount := "0"
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending model.PendingReturn
		if err := tx.Where("addr = ?", addr).First(&pending).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		amount = pending.Amount
		pending.Amount = "0"
		return tx.Save(&pending).Error
	})
	if err != nil {
		utils.Logger.Error("领取余额失败", zap.String("addr", addr), zap.Error(err))
		return "", err
	}
	return amount, nil
}

// Pending 查询addr当前可领取余额
func (l *FundsLedger) Pending(ctx context.Context, addr string) (string, error) {
	var pending model.PendingReturn
	err := l.db.WithContext(ctx).Where("addr = ?", addr).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return pending.Amount, nil
}
