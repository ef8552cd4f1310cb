// Package nodes loads the node configuration document and exposes the
// active node set and origin, per spec.md §4.1.
package nodes

import (
	"encoding/json"
	"fmt"
	"os"

	"cdn-edge/internal/domain"
)

// rawNode mirrors the on-disk JSON shape: is_active is the literal
// string "True"/"False", per the external interface contract.
type rawNode struct {
	Endpoint        string  `json:"endpoint"`
	Alias           string  `json:"alias"`
	AccessKeyID     string  `json:"access_key_id"`
	SecretAccessKey string  `json:"secret_access_key"`
	City            string  `json:"city"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	IsActive        string  `json:"is_active"`
}

// Registry loads node descriptors from a JSON document mapping alias to
// node fields and exposes the active subset.
type Registry struct {
	active domain.ActiveNodeSet
}

// Load reads and parses the node configuration file at path, filtering
// to active nodes. It wraps domain.ErrConfigMissing when the file
// cannot be read or parsed.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConfigMissing, path, err)
	}

	var raw map[string]rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrConfigMissing, path, err)
	}

	active := make(domain.ActiveNodeSet, len(raw))
	for alias, v := range raw {
		if v.IsActive != "True" {
			continue
		}
		active[alias] = domain.Node{
			Endpoint:  v.Endpoint,
			Alias:     alias,
			AccessKey: v.AccessKeyID,
			SecretKey: v.SecretAccessKey,
			City:      v.City,
			Latitude:  v.Latitude,
			Longitude: v.Longitude,
			IsActive:  true,
		}
	}

	return &Registry{active: active}, nil
}

// ActiveNodes returns the loaded active node set.
func (r *Registry) ActiveNodes() domain.ActiveNodeSet {
	return r.active
}

// Origin returns the node aliased ORIGIN, wrapping
// domain.ErrLocationsUnavailable when none is active.
func (r *Registry) Origin() (domain.Node, error) {
	n, ok := r.active.Origin()
	if !ok {
		return domain.Node{}, domain.ErrLocationsUnavailable
	}
	return n, nil
}
