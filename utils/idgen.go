package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateSettleNo 生成结算编号：{时间戳毫秒}-{UUID后8位}
// 拍卖ID本身是顺序分配的整数，结算编号仅用于审计账本的对外检索。
func GenerateSettleNo() string {
	ts := time.Now().UnixMilli()
	uuidStr := uuid.New().String()
	shortUUID := uuidStr[len(uuidStr)-8:]
	return fmt.Sprintf("%d-%s", ts, shortUUID)
}
