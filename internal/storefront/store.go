package storefront

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// IdleCart is a cart whose last update falls inside a trailing window.
type IdleCart struct {
	UserID    string
	ItemCount int
	UpdatedAt time.Time
}

// DiscountedProduct is a catalog product currently on discount.
type DiscountedProduct struct {
	Name        string
	Category    string
	DiscountPct int
}

// PendingFeedbackOrder is a delivered order with no feedback yet.
type PendingFeedbackOrder struct {
	OrderID     string
	UserID      string
	DeliveredAt time.Time
}

// Store exposes the read-only storefront queries the campaign sweeps need.
// The tables behind it belong to the main CRUD application.
type Store interface {
	FindCartsIdleBetween(ctx context.Context, from, to time.Time) ([]IdleCart, error)
	FindTopDiscountedProducts(ctx context.Context, limit int) ([]DiscountedProduct, error)
	FindDeliveredOrdersWithoutFeedback(ctx context.Context, olderThan time.Time, limit int) ([]PendingFeedbackOrder, error)
}

type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindCartsIdleBetween(ctx context.Context, from, to time.Time) ([]IdleCart, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("idle window start must precede end")
	}

	var carts []IdleCart
	err := s.db.WithContext(ctx).
		Table("carts").
		Select("carts.user_id, COUNT(cart_items.id) AS item_count, carts.updated_at").
		Joins("JOIN cart_items ON cart_items.cart_id = carts.id").
		Where("carts.updated_at BETWEEN ? AND ?", from, to).
		Group("carts.user_id, carts.updated_at").
		Having("COUNT(cart_items.id) > 0").
		Scan(&carts).Error
	if err != nil {
		return nil, err
	}
	return carts, nil
}

func (s *GormStore) FindTopDiscountedProducts(ctx context.Context, limit int) ([]DiscountedProduct, error) {
	if limit < 1 {
		limit = 1
	}

	var products []DiscountedProduct
	err := s.db.WithContext(ctx).
		Table("products").
		Select("name, category, discount_pct").
		Where("discount_pct > 0").
		Order("discount_pct DESC").
		Limit(limit).
		Scan(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *GormStore) FindDeliveredOrdersWithoutFeedback(ctx context.Context, olderThan time.Time, limit int) ([]PendingFeedbackOrder, error) {
	if limit < 1 {
		limit = 1
	}

	var orders []PendingFeedbackOrder
	err := s.db.WithContext(ctx).
		Table("orders").
		Select("orders.id AS order_id, orders.user_id, orders.delivered_at").
		Joins("LEFT JOIN feedbacks ON feedbacks.order_id = orders.id").
		Where("orders.status = ? AND orders.delivered_at < ? AND feedbacks.id IS NULL", "delivered", olderThan).
		Order("orders.delivered_at ASC").
		Limit(limit).
		Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
