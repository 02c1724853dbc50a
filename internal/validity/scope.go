package validity

import (
	"fmt"
	"strconv"
)

// ScopeKey groups rules into one timeline: a product, optionally narrowed to a dealer.
// A nil DealerID is the global ("common") scope.
type ScopeKey struct {
	ProductID int64
	DealerID  *int64
}

func GlobalScope(productID int64) ScopeKey {
	return ScopeKey{ProductID: productID}
}

func DealerScope(productID, dealerID int64) ScopeKey {
	d := dealerID
	return ScopeKey{ProductID: productID, DealerID: &d}
}

func (k ScopeKey) IsGlobal() bool {
	return k.DealerID == nil
}

// Global returns the product-wide scope that k falls back to.
func (k ScopeKey) Global() ScopeKey {
	return GlobalScope(k.ProductID)
}

// Equal is an exact match. A dealer scope never equals the global scope of the same product.
func (k ScopeKey) Equal(other ScopeKey) bool {
	if k.ProductID != other.ProductID {
		return false
	}
	if k.DealerID == nil || other.DealerID == nil {
		return k.DealerID == nil && other.DealerID == nil
	}
	return *k.DealerID == *other.DealerID
}

// Key is stable across processes; lock names and log fields are derived from it.
func (k ScopeKey) Key() string {
	dealer := "global"
	if k.DealerID != nil {
		dealer = strconv.FormatInt(*k.DealerID, 10)
	}
	return fmt.Sprintf("product:%d/dealer:%s", k.ProductID, dealer)
}

func (k ScopeKey) String() string {
	return k.Key()
}

func (k ScopeKey) Validate() error {
	if k.ProductID <= 0 {
		return &ScopeInvalidError{Scope: k, Reason: "product_id must be positive"}
	}
	if k.DealerID != nil && *k.DealerID <= 0 {
		return &ScopeInvalidError{Scope: k, Reason: "dealer_id must be positive"}
	}
	return nil
}
