// File: internal/models/contract.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// BlockCount is an integer field of the subgraph schema. The subgraph serialises
// BigInt values as decimal strings while Int values arrive as JSON numbers; both decode.
type BlockCount int64

// UnmarshalJSON accepts a JSON number, a decimal string or null.
func (b *BlockCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid block count %q: %w", string(data), err)
	}
	*b = BlockCount(n)
	return nil
}

// NFTDataItem is one key/value metadata tag set on the data NFT of a contract
type NFTDataItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Owner identifies the owner account of a data NFT
type Owner struct {
	ID string `json:"id"`
}

// NFT is the data NFT backing a datatoken
type NFT struct {
	Owner   Owner         `json:"owner"`
	NFTData []NFTDataItem `json:"nftData"`
}

// Token is the datatoken of a prediction contract
type Token struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	NFT    NFT    `json:"nft"`
}

// RawContractRecord is a predictContracts entry as returned by the subgraph
type RawContractRecord struct {
	ID                        string     `json:"id"`
	Token                     Token      `json:"token"`
	BlocksPerEpoch            BlockCount `json:"blocksPerEpoch"`
	BlocksPerSubscription     BlockCount `json:"blocksPerSubscription"`
	TruevalSubmitTimeoutBlock BlockCount `json:"truevalSubmitTimeoutBlock"`
}

// OwnerID returns the address of the data NFT owner
func (r *RawContractRecord) OwnerID() string {
	return r.Token.NFT.Owner.ID
}

// Normalize maps a raw record into the shape callers keep track of.
func (r *RawContractRecord) Normalize() *NormalizedContract {
	return &NormalizedContract{
		Name:                  r.Token.Name,
		Address:               r.ID,
		Symbol:                r.Token.Symbol,
		BlocksPerEpoch:        int64(r.BlocksPerEpoch),
		BlocksPerSubscription: int64(r.BlocksPerSubscription),
		LastSubmittedEpoch:    0,
	}
}

// FilterSpec maps a metadata category (pair, timeframe, source) to the accepted values.
// A missing or empty value list places no constraint on that category.
type FilterSpec map[string][]string

// Filter categories known to the predictoor tooling
const (
	FilterCategoryPair      = "pair"
	FilterCategoryTimeframe = "timeframe"
	FilterCategorySource    = "source"
)

// NormalizedContract is a discovered prediction contract
type NormalizedContract struct {
	Name                  string     `json:"name" db:"name"`
	Address               string     `json:"address" db:"address"`
	Symbol                string     `json:"symbol" db:"symbol"`
	BlocksPerEpoch        int64      `json:"blocks_per_epoch" db:"blocks_per_epoch"`
	BlocksPerSubscription int64      `json:"blocks_per_subscription" db:"blocks_per_subscription"`
	LastSubmittedEpoch    int64      `json:"last_submitted_epoch" db:"last_submitted_epoch"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}
