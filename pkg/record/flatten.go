package record

import (
	"math"
	"strings"
)

// NotAvailable is the default for missing string fields.
const NotAvailable = "N/A"

// Flat is one fixed-schema row. Every name in Fields is present; values are
// string, int64, float64 or bool.
type Flat map[string]any

// Fields lists the flat schema in canonical order.
var Fields = []string{
	"product_id",
	"name",
	"slugged_name",
	"status",
	"avail_check",
	"min_qty",
	"preorder_available",
	"brand",
	"category_id",
	"category_name",
	"category_nested_id",
	"img_big",
	"img_medium",
	"img_small",
	"rating_value",
	"rating_session_count",
	"rating_assessment_id",
	"offer_uuid",
	"installment_enabled",
	"max_installment_months",
	"old_price",
	"retail_price",
	"offer_avail_check",
	"stock_qty_threshold",
	"discount_start_date",
	"discount_end_date",
	"qty",
	"has_discount",
	"discount_amount",
	"discount_percentage",
	"seller_ext_id",
	"seller_name",
	"seller_marketing_name_id",
	"seller_logo",
	"seller_vat_payer",
	"seller_rating",
	"seller_role",
	"product_labels_count",
	"product_labels",
	"offer_labels_count",
	"offer_labels",
}

// Flatten projects one upstream product onto the flat schema. It never fails:
// a malformed product yields a row made of defaults.
func Flatten(p Value) Flat {
	const (
		offer  = "default_offer"
		seller = "seller"
	)

	oldPrice := p.NumberAt(0, offer, "old_price")
	retailPrice := p.NumberAt(0, offer, "retail_price")
	discount := Discount(oldPrice, retailPrice)

	productLabels := p.ListAt("product_labels")
	offerLabels := p.ListAt(offer, "product_offer_labels")

	return Flat{
		"product_id":         p.IntAt(0, "id"),
		"name":               p.StringAt(NotAvailable, "name"),
		"slugged_name":       p.StringAt(NotAvailable, "slugged_name"),
		"status":             p.StringAt("unknown", "status"),
		"avail_check":        p.BoolAt(false, "avail_check"),
		"min_qty":            p.IntAt(1, "min_qty"),
		"preorder_available": p.BoolAt(false, "preorder_available"),
		"brand":              p.StringAt(NotAvailable, "brand"),

		"category_id":        p.IntAt(0, "category_id"),
		"category_name":      p.StringAt(NotAvailable, "category", "name"),
		"category_nested_id": p.IntAt(0, "category", "id"),

		"img_big":    p.StringAt(NotAvailable, "main_img", "big"),
		"img_medium": p.StringAt(NotAvailable, "main_img", "medium"),
		"img_small":  p.StringAt(NotAvailable, "main_img", "small"),

		"rating_value":         p.NumberAt(0, "ratings", "rating_value"),
		"rating_session_count": p.IntAt(0, "ratings", "session_count"),
		"rating_assessment_id": p.IntAt(0, "ratings", "assessment_id"),

		"offer_uuid":             p.StringAt(NotAvailable, offer, "uuid"),
		"installment_enabled":    p.BoolAt(false, offer, "installment_enabled"),
		"max_installment_months": p.IntAt(0, offer, "max_installment_months"),
		"old_price":              oldPrice,
		"retail_price":           retailPrice,
		"offer_avail_check":      p.BoolAt(false, offer, "avail_check"),
		"stock_qty_threshold":    p.IntAt(0, offer, "show_stock_qty_threshold"),
		"discount_start_date":    p.StringAt(NotAvailable, offer, "discount_effective_start_date"),
		"discount_end_date":      p.StringAt(NotAvailable, offer, "discount_effective_end_date"),
		"qty":                    p.IntAt(0, offer, "qty"),

		"has_discount":        discount.HasDiscount,
		"discount_amount":     discount.Amount,
		"discount_percentage": discount.Percentage,

		"seller_ext_id":            p.StringAt(NotAvailable, offer, seller, "ext_id"),
		"seller_name":              p.StringAt(NotAvailable, offer, seller, "marketing_name", "name"),
		"seller_marketing_name_id": p.IntAt(0, offer, seller, "marketing_name", "id"),
		"seller_logo":              p.StringAt(NotAvailable, offer, seller, "logo", "thumbnail"),
		"seller_vat_payer":         p.BoolAt(false, offer, seller, "vat_payer"),
		"seller_rating":            p.NumberAt(0, offer, seller, "rating"),
		"seller_role":              p.StringAt(NotAvailable, offer, seller, "role_name"),

		"product_labels_count": CountList(p, "product_labels"),
		"product_labels":       FormatLabels(productLabels),
		"offer_labels_count":   CountList(p, offer, "product_offer_labels"),
		"offer_labels":         FormatLabels(offerLabels),
	}
}

// FlattenAll flattens products preserving their order.
func FlattenAll(products []Value) []Flat {
	out := make([]Flat, len(products))
	for i, p := range products {
		out[i] = Flatten(p)
	}
	return out
}

// DiscountInfo holds the fields derived from an offer's two prices.
type DiscountInfo struct {
	HasDiscount bool
	Amount      float64
	Percentage  float64
}

// Discount derives the discount fields. Percentage is 0 when oldPrice is not
// positive.
func Discount(oldPrice, retailPrice float64) DiscountInfo {
	info := DiscountInfo{
		HasDiscount: oldPrice > retailPrice,
		Amount:      Round2(oldPrice - retailPrice),
	}
	if oldPrice > 0 {
		info.Percentage = Round2((oldPrice - retailPrice) / oldPrice * 100)
	}
	return info
}

// Round2 rounds half away from zero at two decimals.
func Round2(f float64) float64 {
	r := math.Round(f*100) / 100
	if r == 0 {
		// Avoid exporting "-0".
		return 0
	}
	return r
}

// FormatLabels joins label entries with ", ". Object entries contribute their
// name, else their id, else their JSON form. An empty list yields "N/A".
func FormatLabels(labels []Value) string {
	if len(labels) == 0 {
		return NotAvailable
	}
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, labelText(label))
	}
	return strings.Join(parts, ", ")
}

// CountList returns the length of the array at path, 0 when absent.
func CountList(v Value, path ...string) int64 {
	return int64(len(v.ListAt(path...)))
}

func labelText(label Value) string {
	if label.Kind() != KindObject {
		return label.Text()
	}
	if name, ok := label.Lookup("name"); ok {
		return name.Text()
	}
	if id, ok := label.Lookup("id"); ok {
		return id.Text()
	}
	return label.Text()
}
