package vault

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenInfo describes an input token eligible for redemption. A zero fixed
// price means "unset" and is an error if the valuation path relies on it.
type TokenInfo struct {
	Address         [20]byte
	Decimals        uint8
	FixedPriceUsd18 *big.Int
}

// Copy returns a deep copy of the token info.
func (t TokenInfo) Copy() TokenInfo {
	clone := t
	if t.FixedPriceUsd18 != nil {
		clone.FixedPriceUsd18 = new(big.Int).Set(t.FixedPriceUsd18)
	} else {
		clone.FixedPriceUsd18 = big.NewInt(0)
	}
	return clone
}

type storedTokenInfo struct {
	Decimals        uint8
	FixedPriceUsd18 string
}

type tokenIndexRecord struct {
	Addresses [][20]byte
}

// Registry maintains the supported input-token set plus per-token fixed
// prices. Removal uses swap-remove so enumeration order stays stable for the
// surviving entries.
type Registry struct {
	store Storage
}

// NewRegistry constructs a registry bound to the storage backend.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store}
}

// Add registers or updates a supported token.
func (r *Registry) Add(info TokenInfo) error {
	if r == nil {
		return fmt.Errorf("registry not initialised")
	}
	stored := storedTokenInfo{Decimals: info.Decimals}
	if info.FixedPriceUsd18 != nil {
		if info.FixedPriceUsd18.Sign() < 0 {
			return fmt.Errorf("registry: fixed price must not be negative")
		}
		stored.FixedPriceUsd18 = info.FixedPriceUsd18.String()
	}
	index, err := r.loadIndex()
	if err != nil {
		return err
	}
	present := false
	for _, addr := range index.Addresses {
		if addr == info.Address {
			present = true
			break
		}
	}
	if !present {
		index.Addresses = append(index.Addresses, info.Address)
		if err := r.store.KVPut(registryIndexKey, index); err != nil {
			return err
		}
	}
	return r.store.KVPut(appendAddr(registryItemPrefix, info.Address), stored)
}

// Remove drops a token from the supported set via swap-remove.
func (r *Registry) Remove(addr [20]byte) error {
	if r == nil {
		return fmt.Errorf("registry not initialised")
	}
	index, err := r.loadIndex()
	if err != nil {
		return err
	}
	for i, entry := range index.Addresses {
		if entry != addr {
			continue
		}
		last := len(index.Addresses) - 1
		index.Addresses[i] = index.Addresses[last]
		index.Addresses = index.Addresses[:last]
		if err := r.store.KVPut(registryIndexKey, index); err != nil {
			return err
		}
		return r.store.KVPut(appendAddr(registryItemPrefix, addr), storedTokenInfo{})
	}
	return nil
}

// Contains reports whether the token is in the supported set.
func (r *Registry) Contains(addr [20]byte) (bool, error) {
	if r == nil {
		return false, fmt.Errorf("registry not initialised")
	}
	index, err := r.loadIndex()
	if err != nil {
		return false, err
	}
	for _, entry := range index.Addresses {
		if entry == addr {
			return true, nil
		}
	}
	return false, nil
}

// Get resolves the stored token info for a supported token.
func (r *Registry) Get(addr [20]byte) (TokenInfo, bool, error) {
	if r == nil {
		return TokenInfo{}, false, fmt.Errorf("registry not initialised")
	}
	ok, err := r.Contains(addr)
	if err != nil || !ok {
		return TokenInfo{}, false, err
	}
	var stored storedTokenInfo
	if _, err := r.store.KVGet(appendAddr(registryItemPrefix, addr), &stored); err != nil {
		return TokenInfo{}, false, err
	}
	info := TokenInfo{Address: addr, Decimals: stored.Decimals, FixedPriceUsd18: big.NewInt(0)}
	if trimmed := strings.TrimSpace(stored.FixedPriceUsd18); trimmed != "" {
		price, ok := new(big.Int).SetString(trimmed, 10)
		if !ok {
			return TokenInfo{}, false, fmt.Errorf("registry: invalid fixed price %q", stored.FixedPriceUsd18)
		}
		info.FixedPriceUsd18 = price
	}
	return info, true, nil
}

// SetFixedPrice updates the fixed USD price for a supported token.
func (r *Registry) SetFixedPrice(addr [20]byte, priceUsd18 *big.Int) error {
	if r == nil {
		return fmt.Errorf("registry not initialised")
	}
	info, ok, err := r.Get(addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotSupported
	}
	info.FixedPriceUsd18 = priceUsd18
	return r.Add(info)
}

// List enumerates the supported tokens in registry order.
func (r *Registry) List() ([]TokenInfo, error) {
	if r == nil {
		return nil, fmt.Errorf("registry not initialised")
	}
	index, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	infos := make([]TokenInfo, 0, len(index.Addresses))
	for _, addr := range index.Addresses {
		info, ok, err := r.Get(addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (r *Registry) loadIndex() (tokenIndexRecord, error) {
	var index tokenIndexRecord
	if _, err := r.store.KVGet(registryIndexKey, &index); err != nil {
		return tokenIndexRecord{}, err
	}
	return index, nil
}
