package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

const couponColumns = `id, app_id, code, type, value, active, redeem_by, max_redemptions,
	redemption_count, product_categories, customer_segments, min_quantity,
	max_discount_cents, seasonal_start, seasonal_end, volume_tiers,
	stackable, priority, created_at, updated_at`

// CouponRepository implements ports.CouponRepository
type CouponRepository struct {
	db ports.DBPort
}

// NewCouponRepository creates a new coupon repository
func NewCouponRepository(db ports.DBPort) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a new coupon row
func (r *CouponRepository) Create(ctx context.Context, tx ports.DBTX, coupon *models.Coupon) error {
	id, err := uuid.Parse(coupon.ID)
	if err != nil {
		return fmt.Errorf("invalid coupon ID: %w", err)
	}
	categories, err := marshalJSON(coupon.ProductCategories, "[]")
	if err != nil {
		return err
	}
	segments, err := marshalJSON(coupon.CustomerSegments, "[]")
	if err != nil {
		return err
	}
	tiers, err := marshalJSON(coupon.VolumeTiers, "[]")
	if err != nil {
		return err
	}

	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now(), now())`,
		id, coupon.AppID, coupon.Code, string(coupon.Type), coupon.Value,
		coupon.Active, coupon.RedeemBy, coupon.MaxRedemptions,
		coupon.RedemptionCount, categories, segments, coupon.MinQuantity,
		coupon.MaxDiscountCents, coupon.SeasonalStart, coupon.SeasonalEnd,
		tiers, coupon.Stackable, coupon.Priority,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeConflict, "coupon code already exists", err)
		}
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

// GetByCode retrieves a coupon by code, scoped by app
func (r *CouponRepository) GetByCode(ctx context.Context, tx ports.DBTX, appID, code string) (*models.Coupon, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE app_id = $1 AND code = $2`,
		appID, code,
	)
	return scanCoupon(row)
}

// ListByCodes retrieves the coupons matching any of the given codes.
// Missing codes are simply absent from the result; the caller decides
// whether that is an error.
func (r *CouponRepository) ListByCodes(ctx context.Context, tx ports.DBTX, appID string, codes []string) ([]*models.Coupon, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	rows, err := r.exec(tx).Query(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE app_id = $1 AND code = ANY($2)`,
		appID, codes,
	)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

// IncrementRedemptions bumps the redemption counter
func (r *CouponRepository) IncrementRedemptions(ctx context.Context, tx ports.DBTX, appID, couponID string) error {
	id, err := uuid.Parse(couponID)
	if err != nil {
		return domain.ErrCouponNotFound
	}
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE coupons
		SET redemption_count = redemption_count + 1, updated_at = now()
		WHERE app_id = $1 AND id = $2`,
		appID, id,
	)
	if err != nil {
		return fmt.Errorf("increment coupon redemptions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCouponNotFound
	}
	return nil
}

func scanCoupon(row pgx.Row) (*models.Coupon, error) {
	var (
		c          models.Coupon
		id         uuid.UUID
		couponType string
		categories []byte
		segments   []byte
		tiers      []byte
	)
	err := row.Scan(&id, &c.AppID, &c.Code, &couponType, &c.Value, &c.Active,
		&c.RedeemBy, &c.MaxRedemptions, &c.RedemptionCount, &categories,
		&segments, &c.MinQuantity, &c.MaxDiscountCents, &c.SeasonalStart,
		&c.SeasonalEnd, &tiers, &c.Stackable, &c.Priority,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}

	c.ID = id.String()
	c.Type = models.CouponType(couponType)
	if err := json.Unmarshal(categories, &c.ProductCategories); err != nil {
		return nil, fmt.Errorf("unmarshal product categories: %w", err)
	}
	if err := json.Unmarshal(segments, &c.CustomerSegments); err != nil {
		return nil, fmt.Errorf("unmarshal customer segments: %w", err)
	}
	if err := json.Unmarshal(tiers, &c.VolumeTiers); err != nil {
		return nil, fmt.Errorf("unmarshal volume tiers: %w", err)
	}
	return &c, nil
}
