// Package money 处理卢比与派士（1/100 卢比）之间的换算，金额在系统内部一律以派士存储
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("金额格式不合法")
	ErrNonPositive     = errors.New("金额必须大于0")
	ErrSubunitFraction = errors.New("金额精度不能超过两位小数")
)

var hundred = decimal.NewFromInt(100)

// ToSubunits 把卢比字符串（如 "1250.50"）换算为派士，拒绝非正数和超过两位小数的金额
func ToSubunits(rupees string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(rupees))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return 0, ErrNonPositive
	}

	paise := d.Mul(hundred)
	if !paise.Equal(paise.Truncate(0)) {
		return 0, ErrSubunitFraction
	}
	return paise.IntPart(), nil
}

// FromSubunits 派士转卢比字符串，固定两位小数
func FromSubunits(paise int64) string {
	return decimal.New(paise, -2).StringFixed(2)
}
