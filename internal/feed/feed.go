package feed

import (
	"encoding/json"
	"time"
)

// Side selects which half of the book a feed query covers.
type Side string

const (
	// SideListings covers sell-side orders.
	SideListings Side = "listings"
	// SideOffers covers buy-side orders.
	SideOffers Side = "offers"
)

// RawOrderRecord is an order exactly as the upstream feed returned it.
// The protocol data block is opaque at this layer; only the protocol
// package interprets it.
type RawOrderRecord struct {
	OrderHash       string          `json:"order_hash"`
	ProtocolAddress string          `json:"protocol_address"`
	Maker           string          `json:"maker"`
	CreatedAt       time.Time       `json:"created_at"`
	ProtocolData    json.RawMessage `json:"protocol_data"`
}

// Page is one slice of the paginated feed plus its continuation token.
// Next is opaque and must be replayed verbatim on the follow-up request.
type Page struct {
	Orders []RawOrderRecord `json:"orders"`
	Next   string           `json:"next"`
}

// PageRequest parameterises a single feed page fetch.
type PageRequest struct {
	Side         Side
	Limit        int
	Cursor       string
	Contract     string
	ListedAfter  time.Time
	ListedBefore time.Time
}
