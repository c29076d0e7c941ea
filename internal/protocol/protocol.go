// Package protocol decodes raw feed payloads into typed, protocol-versioned
// orders. Decoding is best-effort: malformed or legacy payloads degrade to
// "not parsed" and never abort a sync run.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"order-feed-sync/internal/feed"
)

// Kind identifies the signed-order format a record conforms to.
type Kind string

const (
	KindSeaportV14 Kind = "seaport-1.4"
	KindSeaportV15 Kind = "seaport-1.5"
	KindSeaportV16 Kind = "seaport-1.6"
)

// Seaport deploys at the same address on every supported chain, so the
// per-network tables share entries today. The indirection stays because a
// network can pin additional protocol deployments independently.
var sharedAddressTable = map[common.Address]Kind{
	common.HexToAddress("0x00000000000001ad428e4906aE43D8F9852d0dd6"): KindSeaportV14,
	common.HexToAddress("0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC"): KindSeaportV15,
	common.HexToAddress("0x0000000000000068F116a894984e2DB1123eB395"): KindSeaportV16,
}

var addressTables = map[string]map[common.Address]Kind{
	"ethereum": sharedAddressTable,
	"polygon":  sharedAddressTable,
	"base":     sharedAddressTable,
}

// OfferItem is one item offered by the maker.
type OfferItem struct {
	ItemType             int    `json:"itemType"`
	Token                string `json:"token"`
	IdentifierOrCriteria string `json:"identifierOrCriteria"`
	StartAmount          string `json:"startAmount"`
	EndAmount            string `json:"endAmount"`
}

// ConsiderationItem is one item the maker expects in return.
type ConsiderationItem struct {
	OfferItem
	Recipient string `json:"recipient"`
}

// OrderParameters is the protocol-defined parameter block of a signed order.
type OrderParameters struct {
	Offerer       string              `json:"offerer"`
	Zone          string              `json:"zone"`
	Offer         []OfferItem         `json:"offer"`
	Consideration []ConsiderationItem `json:"consideration"`
	OrderType     int                 `json:"orderType"`
	StartTime     json.Number         `json:"startTime"`
	EndTime       json.Number         `json:"endTime"`
	ZoneHash      string              `json:"zoneHash"`
	Salt          string              `json:"salt"`
	ConduitKey    string              `json:"conduitKey"`
	Counter       json.Number         `json:"counter"`
}

// OrderComponents is the full signed order: parameters plus signature.
type OrderComponents struct {
	Parameters OrderParameters `json:"parameters"`
	Signature  string          `json:"signature"`
}

// ParsedOrder is a protocol-versioned typed order.
type ParsedOrder struct {
	Kind       Kind
	Components OrderComponents
}

// Parser selects the protocol version for a record and decodes its payload.
type Parser struct {
	table  map[common.Address]Kind
	logger zerolog.Logger
}

// NewParser constructs a parser for one network's protocol address table.
func NewParser(network string, logger zerolog.Logger) *Parser {
	table, ok := addressTables[strings.ToLower(network)]
	if !ok {
		table = sharedAddressTable
	}
	return &Parser{
		table:  table,
		logger: logger.With().Str("component", "order_parser").Logger(),
	}
}

// Parse converts one raw feed record into a typed order. The second return
// reports success; on failure the record is still persistable by the caller.
func (p *Parser) Parse(raw feed.RawOrderRecord) (ParsedOrder, bool) {
	if !common.IsHexAddress(raw.ProtocolAddress) {
		p.logger.Debug().
			Str("order_hash", raw.OrderHash).
			Str("protocol_address", raw.ProtocolAddress).
			Msg("malformed protocol address")
		return ParsedOrder{}, false
	}

	kind, ok := p.table[common.HexToAddress(raw.ProtocolAddress)]
	if !ok {
		p.logger.Debug().
			Str("order_hash", raw.OrderHash).
			Str("protocol_address", raw.ProtocolAddress).
			Msg("unknown protocol address")
		return ParsedOrder{}, false
	}

	components, err := decodeComponents(raw.ProtocolData)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("order_hash", raw.OrderHash).
			Str("kind", string(kind)).
			Msg("order payload failed to decode")
		return ParsedOrder{}, false
	}

	return ParsedOrder{Kind: kind, Components: components}, true
}

func decodeComponents(payload json.RawMessage) (OrderComponents, error) {
	if len(payload) == 0 {
		return OrderComponents{}, errors.New("empty protocol data")
	}

	var components OrderComponents
	if err := json.Unmarshal(payload, &components); err != nil {
		return OrderComponents{}, fmt.Errorf("decode order components: %w", err)
	}

	params := components.Parameters
	if !common.IsHexAddress(params.Offerer) {
		return OrderComponents{}, fmt.Errorf("invalid offerer %q", params.Offerer)
	}
	if len(params.Offer) == 0 {
		return OrderComponents{}, errors.New("order carries no offer items")
	}
	if components.Signature == "" {
		return OrderComponents{}, errors.New("order carries no signature")
	}
	if _, err := params.StartTime.Int64(); err != nil {
		return OrderComponents{}, fmt.Errorf("invalid start time: %w", err)
	}
	if _, err := params.EndTime.Int64(); err != nil {
		return OrderComponents{}, fmt.Errorf("invalid end time: %w", err)
	}

	return components, nil
}

// FirstOfferToken digs the first offer item's token address out of a raw
// payload without full validation. Used as the target-contract fallback when
// a record fails to parse.
func FirstOfferToken(payload json.RawMessage) string {
	var partial struct {
		Parameters struct {
			Offer []struct {
				Token string `json:"token"`
			} `json:"offer"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(payload, &partial); err != nil {
		return ""
	}
	if len(partial.Parameters.Offer) == 0 {
		return ""
	}
	return strings.ToLower(partial.Parameters.Offer[0].Token)
}
