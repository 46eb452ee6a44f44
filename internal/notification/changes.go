package notification

import (
	"sort"
	"strings"

	"github.com/oceanprotocol/pdr-utils/internal/models"
)

// ContractChange lists the addresses that appeared or disappeared between two refreshes
type ContractChange struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Total   int      `json:"total"`
}

// Empty reports whether nothing changed
func (c *ContractChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// DiffContracts compares two contract sets by address, case-insensitively.
// The result lists addresses as they appear in their own set, sorted.
func DiffContracts(prev, next []*models.NormalizedContract) *ContractChange {
	before := make(map[string]string, len(prev))
	for _, c := range prev {
		before[strings.ToLower(c.Address)] = c.Address
	}
	after := make(map[string]string, len(next))
	for _, c := range next {
		after[strings.ToLower(c.Address)] = c.Address
	}

	change := &ContractChange{Added: []string{}, Removed: []string{}, Total: len(after)}
	for key, addr := range after {
		if _, ok := before[key]; !ok {
			change.Added = append(change.Added, addr)
		}
	}
	for key, addr := range before {
		if _, ok := after[key]; !ok {
			change.Removed = append(change.Removed, addr)
		}
	}
	sort.Strings(change.Added)
	sort.Strings(change.Removed)
	return change
}
