package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orderchain/core"
)

// ErrNotFound is returned when an order has never been indexed.
var ErrNotFound = errors.New("store: not found")

// EventRecord is one committed node event. A call emits at most one event of
// a type per order, so (call hash, type, order) identifies it across node
// restarts, which reset stream sequences.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64
	CallHash   string `gorm:"size:66;uniqueIndex:idx_event_identity"`
	Type       string `gorm:"size:64;uniqueIndex:idx_event_identity;index"`
	OrderID    string `gorm:"size:128;uniqueIndex:idx_event_identity;index"`
	Height     uint64 `gorm:"index"`
	Attributes string `gorm:"type:text"`
	RecordedAt time.Time
}

// OrderRecord is the latest known state of an order.
type OrderRecord struct {
	ID         string    `gorm:"size:128;primaryKey" json:"id"`
	Sequence   uint64    `gorm:"index" json:"sequence"`
	State      string    `gorm:"size:32;index" json:"state"`
	StateCode  uint8     `json:"stateCode"`
	Workflow   string    `gorm:"size:16" json:"workflow"`
	Buyer      string    `gorm:"size:42" json:"buyer"`
	Seller     string    `gorm:"size:42" json:"seller"`
	Reporter   string    `gorm:"size:42" json:"reporter,omitempty"`
	Arbiter    string    `gorm:"size:42" json:"arbiter,omitempty"`
	Total      string    `gorm:"size:80" json:"total"`
	LastHeight uint64    `json:"lastHeight"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PartyOrder links an address to an order it holds a role in.
type PartyOrder struct {
	Party   string `gorm:"size:42;primaryKey"`
	OrderID string `gorm:"size:128;primaryKey"`
	Role    string `gorm:"size:16;primaryKey"`
}

// Event is the API view of an EventRecord.
type Event struct {
	Sequence   uint64            `json:"sequence"`
	CallHash   string            `json:"callHash"`
	Type       string            `json:"type"`
	OrderID    string            `json:"orderId"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

// PartyOrderSummary is an order together with the roles a party holds in it.
type PartyOrderSummary struct {
	OrderRecord
	Roles []string `gorm:"-" json:"roles"`
}

var partyRoles = []string{"buyer", "seller", "reporter", "arbiter"}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to Postgres for postgres:// DSNs and to SQLite otherwise,
// then migrates the schema.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("database url required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EventRecord{},
		&OrderRecord{},
		&PartyOrder{},
	)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func normalizeParty(raw string) string {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return ""
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

// Record persists update. It reports false when the event was already
// indexed or concerns no order, such as a plain transfer.
func (s *Store) Record(ctx context.Context, update core.EventUpdate) (bool, error) {
	attrs := update.Event.Attributes
	orderID := strings.TrimSpace(attrs["id"])
	if orderID == "" {
		return false, nil
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return false, err
	}
	now := s.now().UTC()
	record := EventRecord{
		ID:         uuid.New(),
		Sequence:   update.Sequence,
		CallHash:   update.CallHash,
		Type:       update.Event.Type,
		OrderID:    orderID,
		Height:     update.Event.Height,
		Attributes: string(encoded),
		RecordedAt: now,
	}

	inserted := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true
		if err := upsertOrder(tx, orderID, update, now); err != nil {
			return err
		}
		for _, role := range partyRoles {
			party := normalizeParty(attrs[role])
			if party == "" {
				continue
			}
			link := PartyOrder{Party: party, OrderID: orderID, Role: role}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return inserted, nil
}

func upsertOrder(tx *gorm.DB, orderID string, update core.EventUpdate, now time.Time) error {
	attrs := update.Event.Attributes
	seq, _ := strconv.ParseUint(attrs["sequence"], 10, 64)
	code, _ := strconv.ParseUint(attrs["stateCode"], 10, 8)
	next := OrderRecord{
		ID:         orderID,
		Sequence:   seq,
		State:      attrs["state"],
		StateCode:  uint8(code),
		Workflow:   attrs["workflow"],
		Buyer:      normalizeParty(attrs["buyer"]),
		Seller:     normalizeParty(attrs["seller"]),
		Reporter:   normalizeParty(attrs["reporter"]),
		Arbiter:    normalizeParty(attrs["arbiter"]),
		Total:      attrs["total"],
		LastHeight: update.Event.Height,
		UpdatedAt:  now,
	}

	var existing OrderRecord
	err := tx.Where("id = ?", orderID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&next).Error
	case err != nil:
		return err
	case existing.LastHeight > next.LastHeight:
		// An older event replayed after a newer one must not roll state back.
		return nil
	default:
		return tx.Save(&next).Error
	}
}

// EventsForOrder returns the indexed events of an order in height order.
func (s *Store) EventsForOrder(ctx context.Context, orderID string) ([]Event, error) {
	var records []EventRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", strings.TrimSpace(orderID)).
		Order("height ASC").Order("recorded_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	out := make([]Event, 0, len(records))
	for _, rec := range records {
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(rec.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", rec.ID, err)
		}
		out = append(out, Event{
			Sequence:   rec.Sequence,
			CallHash:   rec.CallHash,
			Type:       rec.Type,
			OrderID:    rec.OrderID,
			Height:     rec.Height,
			Attributes: attrs,
		})
	}
	return out, nil
}

// Order returns the latest indexed state of an order.
func (s *Store) Order(ctx context.Context, orderID string) (*OrderRecord, error) {
	var record OrderRecord
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(orderID)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// OrdersForParty returns the orders addr holds any role in, oldest first.
func (s *Store) OrdersForParty(ctx context.Context, addr common.Address) ([]PartyOrderSummary, error) {
	var links []PartyOrder
	if err := s.db.WithContext(ctx).Where("party = ?", addr.Hex()).Find(&links).Error; err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []PartyOrderSummary{}, nil
	}
	roles := make(map[string][]string, len(links))
	ids := make([]string, 0, len(links))
	for _, link := range links {
		if _, seen := roles[link.OrderID]; !seen {
			ids = append(ids, link.OrderID)
		}
		roles[link.OrderID] = append(roles[link.OrderID], link.Role)
	}

	var records []OrderRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("sequence ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]PartyOrderSummary, 0, len(records))
	for _, record := range records {
		held := roles[record.ID]
		sort.Strings(held)
		out = append(out, PartyOrderSummary{OrderRecord: record, Roles: held})
	}
	return out, nil
}
