package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nft_auction/config"
	"nft_auction/custody"
	"nft_auction/dao"
	"nft_auction/engine"
	"nft_auction/handler"
	"nft_auction/ledger"
	"nft_auction/model"
	"nft_auction/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	// 1. 初始化配置
	if err := config.InitConfig(); err != nil {
		zap.L().Fatal("初始化配置失败", zap.Error(err))
	}

	// 2. 初始化日志
	if err := utils.InitLogger(); err != nil {
		zap.L().Fatal("初始化日志失败", zap.Error(err))
	}
	defer utils.SyncLogger()

	// 3. 初始化MySQL
	db, err := gorm.Open(mysql.Open(config.GlobalConfig.MySQLDSN), &gorm.Config{})
	if err != nil {
		utils.Logger.Fatal("连接MySQL失败", zap.Error(err))
	}

	// 自动迁移表结构（开发环境）
	// 注意：nft_auctions表跨版本只增列不改列，升级后的迁移只会追加V2新列
	err = db.AutoMigrate(
		&model.Auction{},
		&model.AuctionCounter{},
		&model.BidDeposit{},
		&model.PendingReturn{},
		&model.AssetEscrow{},
		&model.SettlementRecord{},
	)
	if err != nil {
		utils.Logger.Fatal("迁移表结构失败", zap.Error(err))
	}

	// 4. 初始化Redis
	if err := utils.InitRedis(config.GlobalConfig.RedisAddr, config.GlobalConfig.RedisPassword, config.GlobalConfig.RedisDB); err != nil {
		utils.Logger.Fatal("初始化Redis失败", zap.Error(err))
	}

	// 5. 初始化RabbitMQ
	if err := utils.InitRabbitMQ(config.GlobalConfig.RabbitMQURL); err != nil {
		utils.Logger.Fatal("初始化RabbitMQ失败", zap.Error(err))
	}
	defer utils.CloseRabbitMQ()

	// 6. 初始化托管适配器
	var custodyAdapter custody.Adapter
	if config.GlobalConfig.CustodyMode == "chain" {
		rpcUrl, ok := config.GlobalConfig.ChainRPCUrl[config.GlobalConfig.ChainID]
		if !ok {
			utils.Logger.Fatal("未配置链RPC地址", zap.Int("chain_id", config.GlobalConfig.ChainID))
		}
		custodyAdapter, err = custody.NewChainAdapter(rpcUrl, config.GlobalConfig.EngineAddr, config.GlobalConfig.EnginePrivateKey)
		if err != nil {
			utils.Logger.Fatal("初始化链上托管失败", zap.Error(err))
		}
	} else {
		// 本地开发：内存托管
		custodyAdapter = custody.NewMemoryAdapter(config.GlobalConfig.EngineAddr)
	}

	// 7. 初始化登记处、资金适配器与引擎（V1/V2共享同一存储与适配器）
	registry := dao.NewAuctionRegistry(db)
	if err := registry.EnsureCounter(); err != nil {
		utils.Logger.Fatal("初始化拍卖ID计数器失败", zap.Error(err))
	}
	fundsLedger := ledger.NewFundsLedger(db)

	// 互斥锁实现按部署形态选择：单实例Redis用SetNX锁即可
	var locker engine.Locker = utils.RedsyncLocker{}
	if config.GlobalConfig.LockMode == "simple" {
		locker = utils.SimpleRedisLocker{}
	}

	deps := engine.Deps{
		DB:        db,
		Registry:  registry,
		Custody:   custodyAdapter,
		Ledger:    fundsLedger,
		Locker:    locker,
		Deadlines: dao.RedisDeadlineIndex{},
		Publish:   utils.PublishSettlementMsg,
		ChainID:   config.GlobalConfig.ChainID,
	}
	proxy := engine.NewProxy(engine.NewEngineV1(deps))
	engineV2 := engine.NewEngineV2(deps)

	// 8. 启动RabbitMQ消费者（结算事件落审计账本）
	settlementDAO := dao.NewSettlementDAO(db)
	err = utils.ConsumeSettlementMsg(func(evt utils.SettlementEvent) error {
		exists, err := settlementDAO.ExistsForAuction(evt.AuctionID)
		if err != nil {
			return err
		}
		if exists {
			// 重复投递，直接确认
			return nil
		}
		return settlementDAO.Create(&model.SettlementRecord{
			SettleNo:  utils.GenerateSettleNo(),
			AuctionID: evt.AuctionID,
			Seller:    evt.Seller,
			Winner:    evt.Winner,
			Price:     evt.Price,
			ChainID:   evt.ChainID,
			SettledAt: evt.SettledAt,
		})
	})
	if err != nil {
		utils.Logger.Fatal("启动消费者失败", zap.Error(err))
	}

	// 9. 启动到期拍卖扫描（窗口已过的拍卖代为调用EndAuction，和外部调用方等价）
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if config.GlobalConfig.SweepInterval > 0 {
		go sweepExpired(sweepCtx, proxy, time.Duration(config.GlobalConfig.SweepInterval)*time.Second)
	}

	// 10. 初始化Gin引擎
	auctionHandler := handler.NewAuctionHandler(proxy, engineV2, settlementDAO)
	r := gin.Default()

	// 路由
	v1 := r.Group("/api/v1")
	{
		v1.POST("/auctions", auctionHandler.CreateAuction)      // 创建拍卖
		v1.POST("/auctions/:id/bids", auctionHandler.PlaceBid)  // 出价
		v1.POST("/auctions/:id/end", auctionHandler.EndAuction) // 结束拍卖
		v1.GET("/auctions/:id", auctionHandler.GetAuction)      // 查询拍卖
		v1.POST("/claims", auctionHandler.Claim)                // 领取可领取余额
		v1.GET("/settlements", auctionHandler.GetSettlements)   // 查询结算记录
		v1.POST("/admin/upgrade", auctionHandler.Upgrade)       // 切换升级版引擎
	}

	// 11. 启动服务（优雅关闭）
	go func() {
		if err := r.Run(config.GlobalConfig.ServerPort); err != nil {
			utils.Logger.Fatal("启动服务失败", zap.Error(err))
		}
	}()

	// 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.Logger.Info("服务正在关闭...")
}

// sweepExpired 周期扫描Redis到期索引，代为结算窗口已过的拍卖
func sweepExpired(ctx context.Context, proxy *engine.Proxy, interval time.Duration) {
	index := dao.RedisDeadlineIndex{}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids, err := index.Due(ctx, time.Now())
		if err != nil {
			utils.Logger.Warn("扫描到期索引失败", zap.Error(err))
			continue
		}

		for _, id := range ids {
			if err := proxy.EndAuction(ctx, id); err != nil {
				// 已被外部调用方结算时索引还没清，属正常竞争
				if errors.Is(err, engine.ErrAuctionNotOpen) || errors.Is(err, engine.ErrAuctionNotFound) {
					_ = index.Remove(ctx, id)
					continue
				}
				utils.Logger.Warn("代为结算失败", zap.Uint64("auction_id", id), zap.Error(err))
			}
		}
	}
}
