package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nft_auction/custody"
	"nft_auction/dao"
	"nft_auction/ledger"
	"nft_auction/model"
	"nft_auction/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testEngineAddr = "0x0000000000000000000000000000000000000E5C"
	testSeller     = "0x1111111111111111111111111111111111111111"
	testBuyer      = "0x2222222222222222222222222222222222222222"
	testBuyer2     = "0x3333333333333333333333333333333333333333"
	testContract   = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	// 0.01 ETH
	testStartPrice = "10000000000000000"
)

func TestMain(m *testing.M) {
	utils.Logger = zap.NewNop()
	os.Exit(m.Run())
}

// fakeClock 可拨动的测试时钟
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type testEnv struct {
	db    *gorm.DB
	cust  *custody.MemoryAdapter
	ledg  *ledger.FundsLedger
	reg   *dao.AuctionRegistry
	clock *fakeClock
	deps  Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auction.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Auction{},
		&model.AuctionCounter{},
		&model.BidDeposit{},
		&model.PendingReturn{},
		&model.AssetEscrow{},
		&model.SettlementRecord{},
	))

	reg := dao.NewAuctionRegistry(db)
	require.NoError(t, reg.EnsureCounter())

	cust := custody.NewMemoryAdapter(testEngineAddr)
	ledg := ledger.NewFundsLedger(db)
	clock := &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}

	return &testEnv{
		db:    db,
		cust:  cust,
		ledg:  ledg,
		reg:   reg,
		clock: clock,
		deps: Deps{
			DB:       db,
			Registry: reg,
			Custody:  cust,
			Ledger:   ledg,
			Now:      clock.Now,
			ChainID:  11155111,
		},
	}
}

// mintAndApprove 给owner铸造NFT并授权引擎为operator
func (env *testEnv) mintAndApprove(owner, tokenID string) custody.AssetRef {
	ref := custody.AssetRef{Contract: testContract, TokenID: tokenID}
	env.cust.Mint(owner, ref)
	env.cust.SetApprovalForAll(owner, testEngineAddr, true)
	return ref
}

func (env *testEnv) createReq(tokenID string) CreateAuctionReq {
	return CreateAuctionReq{
		Seller:      testSeller,
		Duration:    10,
		StartPrice:  testStartPrice,
		NFTContract: testContract,
		TokenID:     tokenID,
	}
}

func TestCreateAuction(t *testing.T) {
	ctx := context.Background()

	t.Run("顺序分配ID，NFT入托管", func(t *testing.T) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)
		env.mintAndApprove(testSeller, "1")
		env.mintAndApprove(testSeller, "2")

		id, err := e.CreateAuction(ctx, env.createReq("1"))
		require.NoError(t, err)
		assert.Equal(t, uint64(0), id) // 首个拍卖ID为0

		id2, err := e.CreateAuction(ctx, env.createReq("2"))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id2)

		auction, err := e.GetAuction(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, testSeller, auction.Seller)
		assert.Equal(t, testStartPrice, auction.StartPrice)
		assert.Equal(t, testStartPrice, auction.MaxPrice)
		assert.Empty(t, auction.MaxBidder)
		assert.Equal(t, model.AuctionStateOpen, auction.State)
		assert.True(t, auction.EscrowHeld)
		assert.Nil(t, auction.EndedAt)

		// NFT已从卖家转入引擎托管
		owner, err := env.cust.Owner(ctx, custody.AssetRef{Contract: testContract, TokenID: "1"})
		require.NoError(t, err)
		assert.Equal(t, testEngineAddr, owner)
	})

	t.Run("参数校验", func(t *testing.T) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)
		env.mintAndApprove(testSeller, "1")

		req := env.createReq("1")
		req.Duration = 0
		_, err := e.CreateAuction(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidDuration)

		req = env.createReq("1")
		req.StartPrice = "not-a-number"
		_, err = e.CreateAuction(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidPrice)

		req = env.createReq("1")
		req.StartPrice = "-1"
		_, err = e.CreateAuction(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidPrice)

		// 校验失败不产生任何记录
		_, err = e.GetAuction(ctx, 0)
		assert.ErrorIs(t, err, ErrAuctionNotFound)
	})

	t.Run("非持有者或未授权时托管失败", func(t *testing.T) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)

		// NFT属于别人
		env.cust.Mint(testBuyer, custody.AssetRef{Contract: testContract, TokenID: "1"})
		_, err := e.CreateAuction(ctx, env.createReq("1"))
		assert.ErrorIs(t, err, custody.ErrNotOwner)

		// 持有但未授权引擎
		env.cust.Mint(testSeller, custody.AssetRef{Contract: testContract, TokenID: "2"})
		_, err = e.CreateAuction(ctx, env.createReq("2"))
		assert.ErrorIs(t, err, custody.ErrNotApproved)

		// 两次失败都不暴露记录
		_, err = e.GetAuction(ctx, 0)
		assert.ErrorIs(t, err, ErrAuctionNotFound)
	})

	t.Run("同一NFT不允许并发二次上拍", func(t *testing.T) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)
		env.mintAndApprove(testSeller, "1")

		_, err := e.CreateAuction(ctx, env.createReq("1"))
		require.NoError(t, err)

		_, err = e.CreateAuction(ctx, env.createReq("1"))
		assert.ErrorIs(t, err, ErrAssetEscrowed)
	})
}

func TestPlaceBid(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*testEnv, Engine, uint64) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)
		env.mintAndApprove(testSeller, "1")
		id, err := e.CreateAuction(ctx, env.createReq("1"))
		require.NoError(t, err)
		return env, e, id
	}

	t.Run("首口价等于起拍价即成为领先者", func(t *testing.T) {
		_, e, id := setup(t)

		require.NoError(t, e.PlaceBid(ctx, id, testBuyer, testStartPrice))

		auction, err := e.GetAuction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, testBuyer, auction.MaxBidder)
		assert.Equal(t, testStartPrice, auction.MaxPrice)
	})

	t.Run("低于起拍价拒绝且不改状态", func(t *testing.T) {
		_, e, id := setup(t)

		err := e.PlaceBid(ctx, id, testBuyer, "9999999999999999")
		assert.ErrorIs(t, err, ErrBidTooLow)

		auction, err := e.GetAuction(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, auction.MaxBidder)
		assert.Equal(t, testStartPrice, auction.MaxPrice)
	})

	t.Run("被超越者资金立即转入可领取余额", func(t *testing.T) {
		env, e, id := setup(t)

		require.NoError(t, e.PlaceBid(ctx, id, testBuyer, testStartPrice))
		require.NoError(t, e.PlaceBid(ctx, id, testBuyer2, "20000000000000000"))

		auction, err := e.GetAuction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, testBuyer2, auction.MaxBidder)
		assert.Equal(t, "20000000000000000", auction.MaxPrice)

		pending, err := env.ledg.Pending(ctx, testBuyer)
		require.NoError(t, err)
		assert.Equal(t, testStartPrice, pending)
	})

	t.Run("平价不换领先者", func(t *testing.T) {
		_, e, id := setup(t)

		require.NoError(t, e.PlaceBid(ctx, id, testBuyer, "20000000000000000"))
		err := e.PlaceBid(ctx, id, testBuyer2, "20000000000000000")
		assert.ErrorIs(t, err, ErrBidTooLow)

		auction, err := e.GetAuction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, testBuyer, auction.MaxBidder)
	})

	t.Run("窗口关闭后出价过期", func(t *testing.T) {
		env, e, id := setup(t)

		// 窗口为[start, start+10s)，到点即关闭
		env.clock.Advance(10 * time.Second)
		err := e.PlaceBid(ctx, id, testBuyer, "20000000000000000")
		assert.ErrorIs(t, err, ErrAuctionExpired)
	})

	t.Run("窗口最后一刻仍可出价", func(t *testing.T) {
		env, e, id := setup(t)

		env.clock.Advance(10*time.Second - time.Nanosecond)
		assert.NoError(t, e.PlaceBid(ctx, id, testBuyer, "20000000000000000"))
	})

	t.Run("拍卖不存在", func(t *testing.T) {
		_, e, _ := setup(t)
		err := e.PlaceBid(ctx, 99, testBuyer, testStartPrice)
		assert.ErrorIs(t, err, ErrAuctionNotFound)
	})

	t.Run("已结束的拍卖不可出价", func(t *testing.T) {
		env, e, id := setup(t)

		env.clock.Advance(11 * time.Second)
		require.NoError(t, e.EndAuction(ctx, id))

		err := e.PlaceBid(ctx, id, testBuyer, "20000000000000000")
		assert.ErrorIs(t, err, ErrAuctionNotOpen)
	})
}

func TestEndAuction(t *testing.T) {
	ctx := context.Background()

	t.Run("窗口未过不可结束", func(t *testing.T) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)
		env.mintAndApprove(testSeller, "1")
		id, err := e.CreateAuction(ctx, env.createReq("1"))
		require.NoError(t, err)

		env.clock.Advance(9 * time.Second)
		err = e.EndAuction(ctx, id)
		assert.ErrorIs(t, err, ErrAuctionStillRunning)

		auction, err := e.GetAuction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.AuctionStateOpen, auction.State)
		assert.True(t, auction.EscrowHeld)
	})

	t.Run("中拍结算：NFT给中拍者，卖家入账可领取", func(t *testing.T) {
		env := newTestEnv(t)
		var published []utils.SettlementEvent
		env.deps.Publish = func(ctx context.Context, evt utils.SettlementEvent) error {
			published = append(published, evt)
			return nil
		}
		e := NewEngineV1(env.deps)
		ref := env.mintAndApprove(testSeller, "1")
		id, err := e.CreateAuction(ctx, env.createReq("1"))
		require.NoError(t, err)

		bid := "20000000000000000"
		require.NoError(t, e.PlaceBid(ctx, id, testBuyer, bid))

		env.clock.Advance(10 * time.Second)
		require.NoError(t, e.EndAuction(ctx, id))

		auction, err := e.GetAuction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.AuctionStateEnded, auction.State)
		assert.False(t, auction.EscrowHeld)
		assert.Equal(t, testBuyer, auction.MaxBidder)
		assert.Equal(t, bid, auction.MaxPrice)

		// NFT归中拍者
		owner, err := env.cust.Owner(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, testBuyer, owner)

		// 成交款转为卖家可领取余额，保证金消账
		pending, err := env.ledg.Pending(ctx, testSeller)
		require.NoError(t, err)
		assert.Equal(t, bid, pending)
		var depositCount int64
		require.NoError(t, env.db.Model(&model.BidDeposit{}).Where("auction_id = ?", id).Count(&depositCount).Error)
		assert.Zero(t, depositCount)

		// 结算事件已发布
		require.Len(t, published, 1)
		assert.Equal(t, id, published[0].AuctionID)
		assert.Equal(t, testBuyer, published[0].Winner)
		assert.Equal(t, bid, published[0].Price)
	})

	t.Run("流拍回转：NFT退回卖家，资金不动", func(t *testing.T) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)
		ref := env.mintAndApprove(testSeller, "1")
		id, err := e.CreateAuction(ctx, env.createReq("1"))
		require.NoError(t, err)

		env.clock.Advance(10 * time.Second)
		require.NoError(t, e.EndAuction(ctx, id))

		owner, err := env.cust.Owner(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, testSeller, owner)

		pending, err := env.ledg.Pending(ctx, testSeller)
		require.NoError(t, err)
		assert.Equal(t, "0", pending)
	})

	t.Run("重复结束被拒绝", func(t *testing.T) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)
		env.mintAndApprove(testSeller, "1")
		id, err := e.CreateAuction(ctx, env.createReq("1"))
		require.NoError(t, err)

		env.clock.Advance(10 * time.Second)
		require.NoError(t, e.EndAuction(ctx, id))
		err = e.EndAuction(ctx, id)
		assert.ErrorIs(t, err, ErrAuctionNotOpen)
	})

	t.Run("释放NFT失败则整体回滚", func(t *testing.T) {
		env := newTestEnv(t)
		e := NewEngineV1(env.deps)
		ref := env.mintAndApprove(testSeller, "1")
		id, err := e.CreateAuction(ctx, env.createReq("1"))
		require.NoError(t, err)
		require.NoError(t, e.PlaceBid(ctx, id, testBuyer, testStartPrice))

		// 人为制造托管异常：NFT被挪出引擎托管，Release将返回ErrNotHeld
		env.cust.Mint("0xdeadbeef", ref)

		env.clock.Advance(10 * time.Second)
		err = e.EndAuction(ctx, id)
		assert.ErrorIs(t, err, custody.ErrNotHeld)

		// 拍卖保持Open，托管标记与资金都未动
		auction, err := e.GetAuction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.AuctionStateOpen, auction.State)
		assert.True(t, auction.EscrowHeld)

		pending, err := env.ledg.Pending(ctx, testSeller)
		require.NoError(t, err)
		assert.Equal(t, "0", pending)

		var depositCount int64
		require.NoError(t, env.db.Model(&model.BidDeposit{}).Where("auction_id = ?", id).Count(&depositCount).Error)
		assert.Equal(t, int64(1), depositCount)
	})
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	e := NewEngineV1(env.deps)
	env.mintAndApprove(testSeller, "1")
	id, err := e.CreateAuction(ctx, env.createReq("1"))
	require.NoError(t, err)

	require.NoError(t, e.PlaceBid(ctx, id, testBuyer, testStartPrice))
	require.NoError(t, e.PlaceBid(ctx, id, testBuyer2, "20000000000000000"))

	// 被超越者领取退款
	amount, err := e.Claim(ctx, testBuyer)
	require.NoError(t, err)
	assert.Equal(t, testStartPrice, amount)

	// 领取后清零
	amount, err = e.Claim(ctx, testBuyer)
	require.NoError(t, err)
	assert.Equal(t, "0", amount)

	// 无余额的地址领取返回0
	amount, err = e.Claim(ctx, "0xnobody")
	require.NoError(t, err)
	assert.Equal(t, "0", amount)
}

// TestFullLifecycle 端到端场景：
// duration=10秒、起拍价0.01 ETH、买家按起拍价出价、窗口过后结束拍卖。
func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	e := NewEngineV1(env.deps)

	ref := env.mintAndApprove(testSeller, "1")
	id, err := e.CreateAuction(ctx, CreateAuctionReq{
		Seller:      testSeller,
		Duration:    10,
		StartPrice:  testStartPrice, // 0.01 ETH
		NFTContract: testContract,
		TokenID:     "1",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	require.NoError(t, e.PlaceBid(ctx, id, testBuyer, testStartPrice))

	env.clock.Advance(10 * time.Second)
	require.NoError(t, e.EndAuction(ctx, id))

	auction, err := e.GetAuction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testBuyer, auction.MaxBidder)
	assert.Equal(t, testStartPrice, auction.MaxPrice)

	owner, err := env.cust.Owner(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, testBuyer, owner)
}
