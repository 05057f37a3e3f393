package payments

import (
	"context"
	"crypto/subtle"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// MerchantDirectory resolves merchant credentials for authentication.
// Reads may be served from a short lived snapshot; absence is authoritative
// only after a source of truth miss.
type MerchantDirectory interface {
	Lookup(ctx context.Context, merchantKey string) (*Merchant, error)
	IsActive(ctx context.Context, merchantKey string) (bool, error)
	ValidateCredentials(ctx context.Context, merchantKey string, secretCandidate string) (bool, error)
}

// CachedDirectory reads merchants through a short lived in memory cache in
// front of the datastore.
type CachedDirectory struct {
	datastore Datastore
	cache     *cache.Cache
}

// NewCachedDirectory builds a directory over the datastore with a thirty
// second snapshot window.
func NewCachedDirectory(datastore Datastore) *CachedDirectory {
	return &CachedDirectory{
		datastore: datastore,
		cache:     cache.New(30*time.Second, 5*time.Minute),
	}
}

// Lookup returns the merchant by key, nil when unknown.
func (d *CachedDirectory) Lookup(ctx context.Context, merchantKey string) (*Merchant, error) {
	if cached, found := d.cache.Get(merchantKey); found {
		merchant := cached.(Merchant)
		return &merchant, nil
	}

	merchant, err := d.datastore.GetMerchant(ctx, merchantKey)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, nil
	}
	d.cache.Set(merchantKey, *merchant, cache.DefaultExpiration)
	return merchant, nil
}

// IsActive reports whether the merchant exists and accepts traffic.
func (d *CachedDirectory) IsActive(ctx context.Context, merchantKey string) (bool, error) {
	merchant, err := d.Lookup(ctx, merchantKey)
	if err != nil {
		return false, err
	}
	return merchant != nil && merchant.Active, nil
}

// ValidateCredentials compares a candidate secret for administrative flows.
// Request path authentication goes through the Signer instead.
func (d *CachedDirectory) ValidateCredentials(ctx context.Context, merchantKey string, secretCandidate string) (bool, error) {
	merchant, err := d.Lookup(ctx, merchantKey)
	if err != nil {
		return false, err
	}
	if merchant == nil {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(merchant.Secret), []byte(secretCandidate)) == 1, nil
}

// Invalidate drops the cached entry so the next lookup hits the store.
func (d *CachedDirectory) Invalidate(merchantKey string) {
	d.cache.Delete(merchantKey)
}
