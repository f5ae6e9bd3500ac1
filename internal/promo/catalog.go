package promo

import (
	"fmt"

	"github.com/veloramarket/push-engine/internal/domain"
)

// Catalog is the static table of candidate promotional messages. Read-only
// at runtime; entries are configuration, not user data.
type Catalog struct {
	templates []domain.PromotionTemplate
}

func NewCatalog(templates []domain.PromotionTemplate) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("catalog requires at least one template")
	}

	copied := make([]domain.PromotionTemplate, len(templates))
	copy(copied, templates)
	return &Catalog{templates: copied}, nil
}

func DefaultCatalog() *Catalog {
	catalog, _ := NewCatalog(defaultTemplates)
	return catalog
}

func (c *Catalog) Templates() []domain.PromotionTemplate {
	copied := make([]domain.PromotionTemplate, len(c.templates))
	copy(copied, c.templates)
	return copied
}

func (c *Catalog) Len() int {
	return len(c.templates)
}

var defaultTemplates = []domain.PromotionTemplate{
	{Title: "Flash Sale", Body: "Up to 50% off for the next few hours. Don't miss out!", Category: domain.CategoryAll, Subtype: "flash_sale"},
	{Title: "Deal of the Day", Body: "Today's top deal is live. Grab it before it's gone.", Category: domain.CategoryAll, Subtype: "daily_deal"},
	{Title: "Weekend Specials", Body: "Weekend-only prices on hundreds of items.", Category: domain.CategoryAll, Subtype: "weekend"},
	{Title: "Free Shipping Today", Body: "No minimum order. Free shipping on everything today.", Category: domain.CategoryAll, Subtype: "shipping"},
	{Title: "New Arrivals", Body: "Fresh styles just dropped. Be the first to shop them.", Category: "Fashion", Subtype: "new_arrivals"},
	{Title: "Wardrobe Refresh", Body: "Trending outfits starting under $20.", Category: "Fashion", Subtype: "trending"},
	{Title: "Tech Deals", Body: "Laptops, phones and accessories at their lowest prices.", Category: "Electronics", Subtype: "tech_deals"},
	{Title: "Audio Week", Body: "Headphones and speakers up to 40% off.", Category: "Electronics", Subtype: "audio"},
	{Title: "Home Makeover", Body: "Furniture and decor deals to refresh your space.", Category: "Home", Subtype: "home"},
	{Title: "Kitchen Essentials", Body: "Cookware and appliances on sale now.", Category: "Home", Subtype: "kitchen"},
	{Title: "Beauty Bestsellers", Body: "Top-rated skincare and makeup picks on sale.", Category: "Beauty", Subtype: "beauty"},
	{Title: "Fitness Gear Sale", Body: "Gear up and save on sports equipment.", Category: "Sports", Subtype: "fitness"},
	{Title: "Loyalty Bonus", Body: "Double points on every purchase this week.", Category: domain.CategoryAll, Subtype: "loyalty"},
	{Title: "Clearance Corner", Body: "Last-chance items at up to 70% off.", Category: domain.CategoryAll, Subtype: "clearance"},
	{Title: "App Exclusive", Body: "An extra 10% off, only in the app. Use code APP10.", Category: domain.CategoryAll, Subtype: "app_exclusive"},
}
