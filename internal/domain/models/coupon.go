package models

import "time"

// CouponType represents the discount mechanism of a coupon
type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
	CouponTypeVolume     CouponType = "volume"
	CouponTypeReferral   CouponType = "referral"
	CouponTypeContract   CouponType = "contract"
)

// VolumeTier is a single tier of a volume coupon. Value is a percentage
// for percentage-valued tiers.
type VolumeTier struct {
	MinQuantity int     `json:"min_quantity"`
	MaxQuantity int     `json:"max_quantity,omitempty"` // 0 means unbounded
	Value       float64 `json:"value"`
}

// Coupon is app-scoped reference data, unique per (app_id, code).
type Coupon struct {
	ID                string
	AppID             string
	Code              string
	Type              CouponType
	Value             float64
	Active            bool
	RedeemBy          *time.Time
	MaxRedemptions    int
	RedemptionCount   int
	ProductCategories []string
	CustomerSegments  []string
	MinQuantity       int
	MaxDiscountCents  int64
	SeasonalStart     *time.Time
	SeasonalEnd       *time.Time
	VolumeTiers       []VolumeTier
	Stackable         bool
	Priority          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
