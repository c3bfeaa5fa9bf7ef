package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nft_auction/custody"
	"nft_auction/dao"
	"nft_auction/ledger"
	"nft_auction/model"
	"nft_auction/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 分布式锁过期时间（兜底，正常路径在事务结束后主动释放）
const lockTTL = 10 * time.Second

// engineV1 基础版拍卖状态机
type engineV1 struct {
	db        *gorm.DB
	registry  *dao.AuctionRegistry
	custody   custody.Adapter
	ledger    *ledger.FundsLedger
	locker    Locker
	deadlines dao.DeadlineIndex
	publish   func(ctx context.Context, evt utils.SettlementEvent) error
	now       func() time.Time
	chainID   int
}

// NewEngineV1 创建基础版拍卖引擎
func NewEngineV1(deps Deps) Engine {
	return newEngineV1(deps)
}

func newEngineV1(deps Deps) *engineV1 {
	e := &engineV1{
		db:        deps.DB,
		registry:  deps.Registry,
		custody:   deps.Custody,
		ledger:    deps.Ledger,
		locker:    deps.Locker,
		deadlines: deps.Deadlines,
		publish:   deps.Publish,
		now:       deps.Now,
		chainID:   deps.ChainID,
	}
	if e.locker == nil {
		e.locker = noopLocker{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Version 引擎逻辑版本
func (e *engineV1) Version() int {
	return 1
}

// CreateAuction 创建拍卖
// 流程：参数校验 -> 资产级分布式锁 -> 托管登记查重 -> 拉取NFT入托管 -> 事务落库（分配ID+拍卖记录+托管登记）。
// 落库失败时把已拉取的NFT释放回卖家补偿，对外不暴露任何半创建的记录。
func (e *engineV1) CreateAuction(ctx context.Context, req CreateAuctionReq) (uint64, error) {
	if req.Duration <= 0 {
		return 0, ErrInvalidDuration
	}
	if _, err := utils.ParseWei(req.StartPrice); err != nil {
		return 0, ErrInvalidPrice
	}

	ref := custody.AssetRef{Contract: req.NFTContract, TokenID: req.TokenID}

	// 资产级锁：防止同一NFT并发重复上拍
	unlock, err := e.locker.Acquire(ctx, "nft_auction:asset:"+ref.Key(), lockTTL)
	if err != nil {
		utils.Logger.Error("获取资产锁失败", zap.String("asset", ref.Key()), zap.Error(err))
		return 0, err
	}
	defer unlock()

	// 托管登记查重：该NFT不允许出现在第二个进行中的拍卖里
	var escrow model.AssetEscrow
	err = e.db.WithContext(ctx).
		Where("nft_contract = ? AND token_id = ? AND held = ?", ref.Contract, ref.TokenID, true).
		First(&escrow).Error
	if err == nil {
		return 0, ErrAssetEscrowed
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	// 先完成托管拉取（外部调用），再落库
	if err := e.custody.Lock(ctx, req.Seller, ref); err != nil {
		return 0, err
	}

	var seqID uint64
	var deadline time.Time
	txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := e.registry.NextID(tx)
		if err != nil {
			return err
		}
		seqID = id

		now := e.now()
		auction := &model.Auction{
			SeqID:       id,
			Seller:      req.Seller,
			NFTContract: ref.Contract,
			TokenID:     ref.TokenID,
			StartPrice:  req.StartPrice,
			StartTime:   now,
			Duration:    req.Duration,
			MaxBidder:   "",
			MaxPrice:    req.StartPrice, // 无人出价时仅为底价，不对应托管资金
			State:       model.AuctionStateOpen,
			EscrowHeld:  true,
			ChainID:     e.chainID,
		}
		if err := e.registry.Put(tx, auction); err != nil {
			return err
		}
		deadline = auction.Deadline()

		return tx.Create(&model.AssetEscrow{
			NFTContract: ref.Contract,
			TokenID:     ref.TokenID,
			AuctionID:   id,
			Held:        true,
			LockTime:    now,
		}).Error
	})
	if txErr != nil {
		// 补偿：把已拉取的NFT退回卖家；退回也失败则NFT滞留托管，必须告警人工介入
		if rerr := e.custody.Release(ctx, ref, req.Seller); rerr != nil {
			utils.Logger.Error("创建拍卖补偿失败，NFT滞留托管",
				zap.String("asset", ref.Key()), zap.String("seller", req.Seller), zap.Error(rerr))
		}
		utils.Logger.Error("创建拍卖落库失败", zap.String("asset", ref.Key()), zap.Error(txErr))
		return 0, txErr
	}

	// 登记到期索引（尽力而为，失败不影响拍卖本身）
	if e.deadlines != nil {
		if err := e.deadlines.Add(ctx, seqID, deadline); err != nil {
			utils.Logger.Warn("登记到期索引失败", zap.Uint64("auction_id", seqID), zap.Error(err))
		}
	}

	utils.Logger.Info("创建拍卖成功",
		zap.Uint64("auction_id", seqID), zap.String("seller", req.Seller),
		zap.String("asset", ref.Key()), zap.String("start_price", req.StartPrice))
	return seqID, nil
}

// PlaceBid 出价
// 规则：窗口内有效；首次出价达到起拍价即可成为领先者（等于底价的首口价有效）；
// 后续出价必须严格高于当前最高价，平价不换领先者。
// 被超越者的资金在同一事务内转入可领取余额，绝不推送转账。
func (e *engineV1) PlaceBid(ctx context.Context, auctionID uint64, bidder, amount string) error {
	if _, err := utils.ParseWei(amount); err != nil {
		return ErrInvalidPrice
	}

	unlock, err := e.locker.Acquire(ctx, fmt.Sprintf("nft_auction:auction:%d", auctionID), lockTTL)
	if err != nil {
		utils.Logger.Error("获取拍卖锁失败", zap.Uint64("auction_id", auctionID), zap.Error(err))
		return err
	}
	defer unlock()

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		auction, err := e.registry.GetForUpdate(tx, auctionID)
		if err != nil {
			if errors.Is(err, dao.ErrAuctionNotFound) {
				return ErrAuctionNotFound
			}
			return err
		}

		if auction.State != model.AuctionStateOpen {
			return ErrAuctionNotOpen
		}
		// 窗口为[StartTime, Deadline)：now >= Deadline 即过期，与到期同刻的出价被拒绝
		if !e.now().Before(auction.Deadline()) {
			return ErrAuctionExpired
		}

		if auction.MaxBidder == "" {
			cmp, err := utils.CmpWei(amount, auction.StartPrice)
			if err != nil {
				return ErrInvalidPrice
			}
			if cmp < 0 {
				return ErrBidTooLow
			}
		} else {
			cmp, err := utils.CmpWei(amount, auction.MaxPrice)
			if err != nil {
				return ErrInvalidPrice
			}
			if cmp <= 0 {
				return ErrBidTooLow
			}
			// 被超越的一刻，前领先者的资金即转入可领取余额
			if err := e.ledger.CreditPending(tx, auction.MaxBidder, auction.MaxPrice); err != nil {
				return err
			}
		}

		if err := e.ledger.Deposit(tx, auctionID, bidder, amount); err != nil {
			return err
		}

		auction.MaxBidder = bidder
		auction.MaxPrice = amount
		return e.registry.Put(tx, auction)
	})
	if err != nil {
		return err
	}

	utils.Logger.Info("出价成功",
		zap.Uint64("auction_id", auctionID), zap.String("bidder", bidder), zap.String("amount", amount))
	return nil
}

// EndAuction 结束拍卖
func (e *engineV1) EndAuction(ctx context.Context, auctionID uint64) error {
	return e.endAuction(ctx, auctionID, false)
}

// endAuction 结束拍卖公共实现（stampEndedAt为V2新增行为：落EndedAt列）
// 状态翻转、托管释放登记、资金结算与NFT释放在同一事务内完成；
// NFT释放失败则整个事务回滚，拍卖保持Open（全有或全无）。
func (e *engineV1) endAuction(ctx context.Context, auctionID uint64, stampEndedAt bool) error {
	unlock, err := e.locker.Acquire(ctx, fmt.Sprintf("nft_auction:auction:%d", auctionID), lockTTL)
	if err != nil {
		utils.Logger.Error("获取拍卖锁失败", zap.Uint64("auction_id", auctionID), zap.Error(err))
		return err
	}
	defer unlock()

	var evt utils.SettlementEvent
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		auction, err := e.registry.GetForUpdate(tx, auctionID)
		if err != nil {
			if errors.Is(err, dao.ErrAuctionNotFound) {
				return ErrAuctionNotFound
			}
			return err
		}

		if auction.State != model.AuctionStateOpen {
			return ErrAuctionNotOpen
		}
		if e.now().Before(auction.Deadline()) {
			return ErrAuctionStillRunning
		}

		now := e.now()
		auction.State = model.AuctionStateEnded
		auction.EscrowHeld = false
		if stampEndedAt {
			auction.EndedAt = &now
		}

		// 中拍：NFT给最高出价者，成交款记入卖家可领取余额；流拍：NFT退回卖家，资金不动
		recipient := auction.Seller
		price := "0"
		if auction.MaxBidder != "" {
			recipient = auction.MaxBidder
			settled, err := e.ledger.SettleToSeller(tx, auction.SeqID, auction.Seller)
			if err != nil {
				return err
			}
			price = settled
		}

		if err := e.registry.Put(tx, auction); err != nil {
			return err
		}

		// 托管释放登记
		res := tx.Model(&model.AssetEscrow{}).
			Where("auction_id = ? AND held = ?", auction.SeqID, true).
			Updates(map[string]interface{}{"held": false, "release_time": &now})
		if res.Error != nil {
			return res.Error
		}

		// NFT释放是本事务最后一步外部调用：失败即回滚上面的全部改动
		ref := custody.AssetRef{Contract: auction.NFTContract, TokenID: auction.TokenID}
		if err := e.custody.Release(ctx, ref, recipient); err != nil {
			utils.Logger.Error("释放NFT失败，结算回滚",
				zap.Uint64("auction_id", auction.SeqID), zap.String("recipient", recipient), zap.Error(err))
			return err
		}

		evt = utils.SettlementEvent{
			AuctionID: auction.SeqID,
			Seller:    auction.Seller,
			Winner:    auction.MaxBidder,
			Price:     price,
			ChainID:   auction.ChainID,
			SettledAt: now,
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 以下为提交后的尽力而为副作用，不影响结算原子性
	if e.deadlines != nil {
		if err := e.deadlines.Remove(ctx, auctionID); err != nil {
			utils.Logger.Warn("移除到期索引失败", zap.Uint64("auction_id", auctionID), zap.Error(err))
		}
	}
	if e.publish != nil {
		if err := e.publish(ctx, evt); err != nil {
			utils.Logger.Error("发布结算事件失败", zap.Uint64("auction_id", auctionID), zap.Error(err))
		}
	}

	utils.Logger.Info("结束拍卖成功",
		zap.Uint64("auction_id", auctionID), zap.String("winner", evt.Winner), zap.String("price", evt.Price))
	return nil
}

// GetAuction 查询拍卖记录
func (e *engineV1) GetAuction(ctx context.Context, auctionID uint64) (*model.Auction, error) {
	auction, err := e.registry.Get(ctx, auctionID)
	if err != nil {
		if errors.Is(err, dao.ErrAuctionNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	return auction, nil
}

// Claim 领取可领取余额
func (e *engineV1) Claim(ctx context.Context, addr string) (string, error) {
	return e.ledger.Claim(ctx, addr)
}
