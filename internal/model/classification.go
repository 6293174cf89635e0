package model

import "time"

// Category is one of the fixed MECE category set. Every classified
// transaction lands in exactly one category.
type Category string

// The fixed category set. vendor_payment is the broadest bucket: any
// business payment to an external party. not_categorized is the fallback
// when the purpose cannot be determined.
const (
	CategoryVendorPayment    Category = "vendor_payment"
	CategorySalaryPayment    Category = "salary_payment"
	CategoryCustomerPayment  Category = "customer_payment_received"
	CategoryTaxPayment       Category = "tax_payment"
	CategoryBankFee          Category = "bank_fee"
	CategoryInternalTransfer Category = "internal_transfer"
	CategoryNotCategorized   Category = "not_categorized"
)

// Categories lists the full set in a stable order.
func Categories() []Category {
	return []Category{
		CategoryVendorPayment,
		CategorySalaryPayment,
		CategoryCustomerPayment,
		CategoryTaxPayment,
		CategoryBankFee,
		CategoryInternalTransfer,
		CategoryNotCategorized,
	}
}

// ValidCategory reports whether c is a member of the fixed set.
func ValidCategory(c Category) bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ClassificationResult is the persisted outcome for one fingerprint.
// Produced once, immutable thereafter; superseded only by an explicit
// re-classification, never silently overwritten.
type ClassificationResult struct {
	ClassifiedAt    time.Time
	Category        Category
	Rationale       string
	VendorID        int64 // 0 when no vendor applies
	VendorName      string
	Confidence      float64
	VendorMatch     float64
	VendorForReview bool // match landed in the review band
}
