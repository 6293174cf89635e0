package model

import "time"

// Vendor is a known payee. Aliases accumulate as resolution accepts
// similar-but-not-identical description texts; vendors are never deleted by
// the pipeline.
type Vendor struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CanonicalName string
	Aliases       []string
	ID            int64
	UseCount      int64 // prior transaction volume, used for tie-breaking
}

// HasAlias reports whether name is already the canonical name or a known
// alias (exact match on the stored form).
func (v *Vendor) HasAlias(name string) bool {
	if name == v.CanonicalName {
		return true
	}
	for _, a := range v.Aliases {
		if a == name {
			return true
		}
	}
	return false
}
