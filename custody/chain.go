package custody

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"nft_auction/utils"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ERC721ABI ERC721合约基础ABI（托管只需要ownerOf/isApprovedForAll/safeTransferFrom三个方法）
const ERC721ABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "tokenId", "type": "uint256"}
		],
		"name": "ownerOf",
		"outputs": [
			{"internalType": "address", "name": "", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "address", "name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [
			{"internalType": "bool", "name": "", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "from", "type": "address"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "tokenId", "type": "uint256"}
		],
		"name": "safeTransferFrom",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// ChainAdapter 链上托管适配器（引擎地址作为托管方，需被卖家setApprovalForAll授权）
type ChainAdapter struct {
	client     *ethclient.Client
	abi        abi.ABI
	engineAddr common.Address
	engineKey  *ecdsa.PrivateKey
	chainID    *big.Int
}

// NewChainAdapter 创建链上托管适配器
// params:
// - rpcUrl: 区块链节点RPC地址
// - engineAddr: 引擎托管地址
// - enginePrivateKey: 引擎私钥（测试网，生产环境需使用钱包签名服务）
func NewChainAdapter(rpcUrl, engineAddr, enginePrivateKey string) (*ChainAdapter, error) {
	// 连接区块链节点
	client, err := ethclient.Dial(rpcUrl)
	if err != nil {
		utils.Logger.Error("连接区块链节点失败", zap.String("rpcUrl", rpcUrl), zap.Error(err))
		return nil, err
	}

	// 解析ABI
	abiObj, err := abi.JSON(strings.NewReader(ERC721ABI))
	if err != nil {
		utils.Logger.Error("解析ABI失败", zap.Error(err))
		return nil, err
	}

	// 解析引擎私钥
	key, err := crypto.HexToECDSA(strings.TrimPrefix(enginePrivateKey, "0x"))
	if err != nil {
		utils.Logger.Error("解析引擎私钥失败", zap.Error(err))
		return nil, err
	}

	// 获取链ID
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		utils.Logger.Error("获取链ID失败", zap.Error(err))
		return nil, err
	}

	return &ChainAdapter{
		client:     client,
		abi:        abiObj,
		engineAddr: common.HexToAddress(engineAddr),
		engineKey:  key,
		chainID:    chainID,
	}, nil
}

// Owner 查询NFT当前持有者
func (c *ChainAdapter) Owner(ctx context.Context, ref AssetRef) (string, error) {
	contract, tokenID, err := c.bind(ref)
	if err != nil {
		return "", err
	}

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", tokenID); err != nil {
		utils.Logger.Error("调用ownerOf失败", zap.String("asset", ref.Key()), zap.Error(err))
		return "", err
	}
	return out[0].(common.Address).Hex(), nil
}

// Lock 将NFT从owner转入引擎托管（safeTransferFrom owner -> engine）
func (c *ChainAdapter) Lock(ctx context.Context, owner string, ref AssetRef) error {
	contract, tokenID, err := c.bind(ref)
	if err != nil {
		return err
	}
	ownerAddr := common.HexToAddress(owner)

	// 前置校验：owner确实持有该NFT
	var ownerOut []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &ownerOut, "ownerOf", tokenID); err != nil {
		return err
	}
	if ownerOut[0].(common.Address) != ownerAddr {
		return ErrNotOwner
	}

	// 前置校验：owner已将引擎设为operator
	var approvedOut []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &approvedOut, "isApprovedForAll", ownerAddr, c.engineAddr); err != nil {
		return err
	}
	if !approvedOut[0].(bool) {
		return ErrNotApproved
	}

	return c.transfer(ctx, contract, ownerAddr, c.engineAddr, tokenID, ref)
}

// Release 将引擎托管的NFT转给to（safeTransferFrom engine -> to）
func (c *ChainAdapter) Release(ctx context.Context, ref AssetRef, to string) error {
	contract, tokenID, err := c.bind(ref)
	if err != nil {
		return err
	}

	// 前置校验：NFT确实在引擎托管中
	var ownerOut []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &ownerOut, "ownerOf", tokenID); err != nil {
		return err
	}
	if ownerOut[0].(common.Address) != c.engineAddr {
		return ErrNotHeld
	}

	return c.transfer(ctx, contract, c.engineAddr, common.HexToAddress(to), tokenID, ref)
}

// bind 绑定NFT合约并转换TokenID
func (c *ChainAdapter) bind(ref AssetRef) (*bind.BoundContract, *big.Int, error) {
	tokenID := new(big.Int)
	if _, ok := tokenID.SetString(ref.TokenID, 10); !ok {
		utils.Logger.Error("转换TokenID失败", zap.String("tokenId", ref.TokenID))
		return nil, nil, fmt.Errorf("custody: invalid token id %q", ref.TokenID)
	}
	contract := bind.NewBoundContract(common.HexToAddress(ref.Contract), c.abi, c.client, c.client, c.client)
	return contract, tokenID, nil
}

// transfer 执行safeTransferFrom并等待上链
func (c *ChainAdapter) transfer(ctx context.Context, contract *bind.BoundContract, from, to common.Address, tokenID *big.Int, ref AssetRef) error {
	// 构建交易授权（引擎私钥签名，引擎作为operator转移NFT）
	auth, err := bind.NewKeyedTransactorWithChainID(c.engineKey, c.chainID)
	if err != nil {
		utils.Logger.Error("构建交易授权失败", zap.Error(err))
		return err
	}
	auth.Context = ctx

	tx, err := contract.Transact(auth, "safeTransferFrom", from, to, tokenID)
	if err != nil {
		utils.Logger.Error("执行safeTransferFrom失败", zap.String("asset", ref.Key()), zap.Error(err))
		return err
	}

	// 等待交易上链
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		utils.Logger.Error("等待交易上链失败", zap.String("txHash", tx.Hash().Hex()), zap.Error(err))
		return err
	}
	if receipt.Status == 0 {
		utils.Logger.Error("交易执行失败（状态为0）", zap.String("txHash", tx.Hash().Hex()))
		return fmt.Errorf("custody: transfer reverted, tx %s", tx.Hash().Hex())
	}

	return nil
}
