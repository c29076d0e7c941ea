package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRow is the persisted form of one feed record. Hash is the natural
// key; address fields are stored lowercased. Insertion is conflict-skip on
// hash, never an update.
type OrderRow struct {
	Hash           string
	TargetContract string
	Maker          string
	CreatedAt      time.Time
	Raw            json.RawMessage
	Source         string
	InsertedAt     time.Time
}

// CollectionProbe seeds offer probing with one sampled token per collection.
type CollectionProbe struct {
	Slug           string
	Contract       string
	TokenID        string
	TrailingVolume decimal.Decimal
	RefreshedAt    time.Time
}
