// Package pricing computes shipping, tax, commission and payment deadlines.
// Every function here is deterministic and knows nothing about entity status.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	BaseShippingFee       int64 = 1500
	RemoteRegionSurcharge int64 = 1000
	PerKilogramFee        int64 = 200
	FreeWeightKg          int64 = 10

	PaymentWindow = 72 * time.Hour
)

var (
	DefaultTaxRate        = decimal.RequireFromString("0.05")
	DefaultCommissionRate = decimal.RequireFromString("0.035")
)

var remoteRegions = map[string]struct{}{
	"hokkaido":       {},
	"okinawa":        {},
	"remote-region":  {},
	"remote-islands": {},
}

var islandRegions = map[string]struct{}{
	"okinawa":        {},
	"remote-islands": {},
}

var mountainRegions = map[string]struct{}{
	"hokkaido":  {},
	"nagano":    {},
	"yamanashi": {},
	"gifu":      {},
}

// DeliveryWindow is an inclusive range of days.
type DeliveryWindow struct {
	MinDays int `json:"min_days"`
	MaxDays int `json:"max_days"`
}

// Commission splits a sale price into the platform fee and the seller payout.
type Commission struct {
	Fee            int64 `json:"fee"`
	SellerReceives int64 `json:"seller_receives"`
}

func normalizeRegion(region string) string {
	return strings.ToLower(strings.TrimSpace(region))
}

// IsRemoteRegion reports whether the region carries the remote surcharge.
func IsRemoteRegion(region string) bool {
	_, ok := remoteRegions[normalizeRegion(region)]
	return ok
}

// ShippingCost returns the shipping fee for a parcel sent to region.
// weightKg may be nil when the listing has no recorded weight.
func ShippingCost(region string, weightKg *float64) int64 {
	cost := BaseShippingFee
	if IsRemoteRegion(region) {
		cost += RemoteRegionSurcharge
	}
	if weightKg != nil {
		over := decimal.NewFromFloat(*weightKg).Sub(decimal.NewFromInt(FreeWeightKg))
		if over.IsPositive() {
			cost += over.Ceil().IntPart() * PerKilogramFee
		}
	}
	return cost
}

// EstimateDelivery returns the delivery window for region.
func EstimateDelivery(region string) DeliveryWindow {
	r := normalizeRegion(region)
	if _, ok := islandRegions[r]; ok {
		return DeliveryWindow{MinDays: 5, MaxDays: 10}
	}
	if _, ok := mountainRegions[r]; ok {
		return DeliveryWindow{MinDays: 3, MaxDays: 7}
	}
	return DeliveryWindow{MinDays: 2, MaxDays: 4}
}

// Tax applies rate to subtotal, rounded half away from zero to whole yen.
func Tax(subtotal int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotal).Mul(rate).Round(0).IntPart()
}

// CommissionFor applies rate to price.
func CommissionFor(price int64, rate decimal.Decimal) Commission {
	fee := decimal.NewFromInt(price).Mul(rate).Round(0).IntPart()
	return Commission{Fee: fee, SellerReceives: price - fee}
}

// PaymentDeadline is the moment an unpaid order lapses.
func PaymentDeadline(now time.Time) time.Time {
	return now.Add(PaymentWindow)
}
