package utils

import (
	"fmt"
	"math/big"
)

// ParseWei 解析wei金额字符串（十进制，非负）
func ParseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative wei amount: %q", s)
	}
	return v, nil
}

// AddWei 两个wei金额字符串求和
func AddWei(a, b string) (string, error) {
	av, err := ParseWei(a)
	if err != nil {
		return "", err
	}
	bv, err := ParseWei(b)
	if err != nil {
		return "", err
	}
	return new(big.Int).Add(av, bv).String(), nil
}

// CmpWei 比较两个wei金额字符串：a<b返回-1，a==b返回0，a>b返回1
func CmpWei(a, b string) (int, error) {
	av, err := ParseWei(a)
	if err != nil {
		return 0, err
	}
	bv, err := ParseWei(b)
	if err != nil {
		return 0, err
	}
	return av.Cmp(bv), nil
}
