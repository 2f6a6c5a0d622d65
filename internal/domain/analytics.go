package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VolumeBucket aggregates a token's executed trades over one time interval.
type VolumeBucket struct {
	TokenID     string
	BucketStart time.Time
	BuyVolume   decimal.Decimal // quote currency spent on buys
	SellVolume  decimal.Decimal // tokens sold back
	TradeCount  int64
	OpenPrice   decimal.Decimal // price before the first trade in the bucket
	ClosePrice  decimal.Decimal // price after the last trade in the bucket
}
