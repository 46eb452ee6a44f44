package subgraph

import (
	"slices"

	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// SatisfiesFilters reports whether the metadata tags of a contract are accepted by spec.
//
// Contracts without tags, and categories whose tag is missing from nftData, are never
// rejected. A category only rejects when its tag is present and its value is not among
// the accepted values. The first tag carrying the category key is the one that counts.
func SatisfiesFilters(nftData []models.NFTDataItem, spec models.FilterSpec) bool {
	if len(nftData) == 0 {
		return true
	}

	for category, accepted := range spec {
		if len(accepted) == 0 {
			continue
		}

		value, ok := lookupTag(nftData, utils.KeccakText(category))
		if !ok {
			continue
		}

		if !slices.Contains(accepted, value) {
			return false
		}
	}

	return true
}

func lookupTag(nftData []models.NFTDataItem, key string) (string, bool) {
	for _, item := range nftData {
		if item.Key == key {
			return item.Value, true
		}
	}
	return "", false
}

// FilterByOwners keeps the records whose data NFT owner is in owners.
// Addresses are compared verbatim.
func FilterByOwners(contracts []models.RawContractRecord, owners []string) []models.RawContractRecord {
	allowed := make(map[string]struct{}, len(owners))
	for _, owner := range owners {
		allowed[owner] = struct{}{}
	}

	filtered := make([]models.RawContractRecord, 0, len(contracts))
	for _, contract := range contracts {
		if _, ok := allowed[contract.OwnerID()]; ok {
			filtered = append(filtered, contract)
		}
	}
	return filtered
}

// FilterContracts applies the owner allow-list and then the metadata filters.
func FilterContracts(contracts []models.RawContractRecord, owners []string, spec models.FilterSpec) []models.RawContractRecord {
	byOwner := FilterByOwners(contracts, owners)

	filtered := make([]models.RawContractRecord, 0, len(byOwner))
	for _, contract := range byOwner {
		if SatisfiesFilters(contract.Token.NFT.NFTData, spec) {
			filtered = append(filtered, contract)
		}
	}
	return filtered
}
