package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// DiscountContext carries the eligibility inputs for a discount run
type DiscountContext struct {
	Now             time.Time
	CustomerSegment string
	ProductTypes    []string
	TotalQuantity   int
}

// CouponApplication records one applied coupon
type CouponApplication struct {
	Code          string `json:"code"`
	CouponID      string `json:"coupon_id"`
	DiscountCents int64  `json:"discount_cents"`
	// AppliedToCents is the running subtotal the coupon was computed against.
	AppliedToCents int64 `json:"applied_to_cents"`
}

// CouponRejection records one rejected coupon with a human-readable reason
type CouponRejection struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// DiscountResult is the outcome of stacking coupons over a subtotal
type DiscountResult struct {
	SubtotalCents      int64               `json:"subtotal_cents"`
	TotalDiscountCents int64               `json:"total_discount_cents"`
	RemainderCents     int64               `json:"remainder_cents"`
	Applied            []CouponApplication `json:"applied"`
	Rejected           []CouponRejection   `json:"rejected"`
}

const reasonSuperseded = "non-stackable, lower priority"

// ApplyDiscounts stacks coupons over the (possibly prorated) subtotal.
//
// Among eligible non-stackable coupons at the highest priority the single one
// producing the largest discount wins; all other non-stackables are rejected.
// Stackable coupons are then applied to the running remainder in priority
// order. The total discount never exceeds the subtotal.
func ApplyDiscounts(subtotalCents int64, coupons []*models.Coupon, dctx DiscountContext) *DiscountResult {
	result := &DiscountResult{SubtotalCents: subtotalCents}

	var eligible []*models.Coupon
	for _, c := range coupons {
		if reason := ineligibleReason(c, dctx); reason != "" {
			result.Rejected = append(result.Rejected, CouponRejection{Code: c.Code, Reason: reason})
			continue
		}
		eligible = append(eligible, c)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Priority > eligible[j].Priority
	})

	remainder := subtotalCents

	// Pick the winning non-stackable: highest priority, then largest
	// effective discount after the per-coupon cap. The slice is already
	// sorted by priority descending.
	var winner *models.Coupon
	var winnerDiscount int64
	for _, c := range eligible {
		if c.Stackable {
			continue
		}
		d := clampDiscount(couponDiscount(c, subtotalCents, dctx), subtotalCents, c.MaxDiscountCents)
		switch {
		case winner == nil:
			winner = c
			winnerDiscount = d
		case c.Priority == winner.Priority && d > winnerDiscount:
			result.Rejected = append(result.Rejected, CouponRejection{Code: winner.Code, Reason: reasonSuperseded})
			winner = c
			winnerDiscount = d
		default:
			result.Rejected = append(result.Rejected, CouponRejection{Code: c.Code, Reason: reasonSuperseded})
		}
	}

	if winner != nil {
		result.Applied = append(result.Applied, CouponApplication{
			Code:           winner.Code,
			CouponID:       winner.ID,
			DiscountCents:  winnerDiscount,
			AppliedToCents: remainder,
		})
		remainder -= winnerDiscount
	}

	// Stackables apply to the running remainder in priority order.
	for _, c := range eligible {
		if !c.Stackable {
			continue
		}
		if remainder <= 0 {
			result.Rejected = append(result.Rejected, CouponRejection{Code: c.Code, Reason: "subtotal exhausted"})
			continue
		}
		d := clampDiscount(couponDiscount(c, remainder, dctx), remainder, c.MaxDiscountCents)
		result.Applied = append(result.Applied, CouponApplication{
			Code:           c.Code,
			CouponID:       c.ID,
			DiscountCents:  d,
			AppliedToCents: remainder,
		})
		remainder -= d
	}

	result.RemainderCents = remainder
	result.TotalDiscountCents = subtotalCents - remainder
	return result
}

// couponDiscount computes the raw discount a coupon produces against base
func couponDiscount(c *models.Coupon, baseCents int64, dctx DiscountContext) int64 {
	switch c.Type {
	case models.CouponTypeFixed:
		return RoundCents(decimal.NewFromFloat(c.Value))
	case models.CouponTypeVolume:
		pct := volumeTierValue(c, dctx.TotalQuantity)
		return percentOf(baseCents, pct)
	default:
		// percentage, referral, and contract coupons all carry a percentage value
		return percentOf(baseCents, c.Value)
	}
}

func percentOf(baseCents int64, pct float64) int64 {
	return RoundCents(decimal.NewFromInt(baseCents).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)))
}

// volumeTierValue chooses the highest tier whose min <= quantity and whose
// max (when set) is not exceeded. Below the smallest tier the value is zero.
func volumeTierValue(c *models.Coupon, quantity int) float64 {
	best := 0.0
	bestMin := -1
	for _, tier := range c.VolumeTiers {
		if quantity < tier.MinQuantity {
			continue
		}
		if tier.MaxQuantity > 0 && quantity > tier.MaxQuantity {
			continue
		}
		if tier.MinQuantity > bestMin {
			bestMin = tier.MinQuantity
			best = tier.Value
		}
	}
	return best
}

func clampDiscount(discount, remainder, capCents int64) int64 {
	if capCents > 0 && discount > capCents {
		discount = capCents
	}
	if discount > remainder {
		discount = remainder
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// ineligibleReason returns a human-readable rejection reason, or "" when the
// coupon passes every gate.
func ineligibleReason(c *models.Coupon, dctx DiscountContext) string {
	if !c.Active {
		return "coupon is not active"
	}
	if c.SeasonalStart != nil && dctx.Now.Before(*c.SeasonalStart) {
		return "seasonal window has not started"
	}
	if c.SeasonalEnd != nil && dctx.Now.After(*c.SeasonalEnd) {
		return "seasonal window has ended"
	}
	if c.RedeemBy != nil && dctx.Now.After(*c.RedeemBy) {
		return "redemption deadline has passed"
	}
	if c.MaxRedemptions > 0 && c.RedemptionCount >= c.MaxRedemptions {
		return "maximum redemptions reached"
	}
	if len(c.CustomerSegments) > 0 && !contains(c.CustomerSegments, dctx.CustomerSegment) {
		return fmt.Sprintf("customer segment %q is not eligible", dctx.CustomerSegment)
	}
	if len(c.ProductCategories) > 0 && !containsAny(c.ProductCategories, dctx.ProductTypes) {
		return "no eligible product category"
	}
	if c.MinQuantity > 0 && dctx.TotalQuantity < c.MinQuantity {
		return fmt.Sprintf("quantity %d is below minimum %d", dctx.TotalQuantity, c.MinQuantity)
	}
	return ""
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsAny(haystack, needles []string) bool {
	for _, n := range needles {
		if contains(haystack, n) {
			return true
		}
	}
	return false
}
