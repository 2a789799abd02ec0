package state

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	orderRecordPrefix     = []byte("orders/order/")
	orderPartyIndexPrefix = []byte("orders/party/")
	orderSequencePrefix   = []byte("orders/seq/")
	orderSequenceKeyBytes = []byte("orders/sequence")
	orderConfigKeyBytes   = []byte("orders/config")
	orderEscrowHeldKey    = []byte("orders/held")
)

// OrderKey returns the KV key of the order record for id.
func OrderKey(id string) []byte {
	buf := make([]byte, 0, len(orderRecordPrefix)+len(id))
	buf = append(buf, orderRecordPrefix...)
	return append(buf, id...)
}

// OrderPartyCountKey holds how many orders addr takes part in.
func OrderPartyCountKey(addr common.Address) []byte {
	buf := make([]byte, 0, len(orderPartyIndexPrefix)+common.AddressLength)
	buf = append(buf, orderPartyIndexPrefix...)
	return append(buf, addr.Bytes()...)
}

// OrderPartyEntryKey returns the KV key of the n-th order id, counting from
// one, that addr takes part in.
func OrderPartyEntryKey(addr common.Address, n uint64) []byte {
	buf := OrderPartyCountKey(addr)
	buf = append(buf, '/')
	return binary.BigEndian.AppendUint64(buf, n)
}

// OrderSequenceKey holds the global order counter.
func OrderSequenceKey() []byte { return append([]byte(nil), orderSequenceKeyBytes...) }

// OrderConfigKey holds the immutable store configuration.
func OrderConfigKey() []byte { return append([]byte(nil), orderConfigKeyBytes...) }

// OrderEscrowHeldKey tracks the amount the escrow account owes to open orders.
func OrderEscrowHeldKey() []byte { return append([]byte(nil), orderEscrowHeldKey...) }

// OrderSequenceIndexKey maps a sequence number back to its order id.
func OrderSequenceIndexKey(seq uint64) []byte {
	buf := make([]byte, 0, len(orderSequencePrefix)+8)
	buf = append(buf, orderSequencePrefix...)
	return binary.BigEndian.AppendUint64(buf, seq)
}
