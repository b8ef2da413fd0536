package realtime

import "time"

// PriceTick represents a real-time price update
// ⭐ SSOT: 실시간 가격 데이터 구조
type PriceTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`     // 체결가
	Volume    float64   `json:"volume"`    // 체결량
	Timestamp time.Time `json:"timestamp"` // 체결 시각
	Source    string    `json:"source"`    // 소스: "finnhub", "manual"
	IsStale   bool      `json:"is_stale"`  // 오래된 데이터 여부
}

// PriceSource represents the source of price data
type PriceSource string

const (
	SourceFinnhub PriceSource = "finnhub"
	SourceManual  PriceSource = "manual"
)

// Priority returns priority for source (higher = better)
func (s PriceSource) Priority() int {
	switch s {
	case SourceFinnhub:
		return 2
	case SourceManual:
		return 1
	default:
		return 0
	}
}
