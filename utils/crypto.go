package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// SignPayload 计算请求签名（简化版，与VerifySignature配对）
func SignPayload(userAddr, data string) string {
	hash := sha256.Sum256([]byte(data + userAddr))
	return hex.EncodeToString(hash[:])[:16]
}

// VerifySignature 验证签名（简化版：实际需用ECDSA验证钱包签名）
// params: userAddr-用户地址, data-待签数据, signature-签名
func VerifySignature(userAddr, data, signature string) bool {
	// 模拟验签：实际需调用go-ethereum的crypto包验证
	return signature == SignPayload(userAddr, data)
}
