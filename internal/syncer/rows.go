package syncer

import (
	"encoding/json"
	"strings"

	"order-feed-sync/internal/feed"
	"order-feed-sync/internal/protocol"
	"order-feed-sync/internal/storage"
)

// rowFromParsed builds a row whose target contract comes from the typed
// order's first offer item.
func rowFromParsed(record feed.RawOrderRecord, order protocol.ParsedOrder, source string) storage.OrderRow {
	target := ""
	if offer := order.Components.Parameters.Offer; len(offer) > 0 {
		target = strings.ToLower(offer[0].Token)
	}
	return newRow(record, target, source)
}

// rowFromFallback builds a degraded row for a record that failed to parse.
// The raw payload still carries enough structure to name a target contract,
// so the record is persisted either way; it just never reaches the queue.
func rowFromFallback(record feed.RawOrderRecord, source string) storage.OrderRow {
	return newRow(record, protocol.FirstOfferToken(record.ProtocolData), source)
}

func newRow(record feed.RawOrderRecord, target, source string) storage.OrderRow {
	raw, err := json.Marshal(record)
	if err != nil {
		raw = record.ProtocolData
	}
	return storage.OrderRow{
		Hash:           strings.ToLower(record.OrderHash),
		TargetContract: target,
		Maker:          strings.ToLower(record.Maker),
		CreatedAt:      record.CreatedAt,
		Raw:            raw,
		Source:         source,
	}
}
