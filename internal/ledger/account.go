// Package ledger is the stand-in for an external "ledger runtime"
// collaborator: deterministic account storage, rent-exempt
// accounting, and a monotonic clock. It is backed by go.etcd.io/bbolt so
// the repository has a real, inspectable account store instead of an
// in-memory map that would disappear with the process — the way a real
// validator's accounts DB persists between transactions.
package ledger

import "encoding/binary"

// RentExemptMinimum is the minimum lamport balance an account must carry
// to persist, mirroring the host ledger's rent-exemption floor. Chosen to
// match the real-world order of magnitude for a small fixed-size account
// (roughly 128 bytes of data).
const RentExemptMinimum uint64 = 890_880

// Account is one ledger account: an owner-tagged lamport balance plus an
// opaque data payload (the dense, no-padding serialized TransferState for
// the transfer-state PDA, or empty for a stealth-split PDA that only ever
// moves lamports).
type Account struct {
	Key      [32]byte
	Owner    [32]byte
	Lamports uint64
	Data     []byte
}

// encode serializes an Account for bbolt storage: Owner(32) ||
// Lamports(8, little-endian) || Data.
func (a Account) encode() []byte {
	buf := make([]byte, 32+8+len(a.Data))
	copy(buf[:32], a.Owner[:])
	binary.LittleEndian.PutUint64(buf[32:40], a.Lamports)
	copy(buf[40:], a.Data)
	return buf
}

func decodeAccount(key [32]byte, buf []byte) Account {
	var a Account
	a.Key = key
	copy(a.Owner[:], buf[:32])
	a.Lamports = binary.LittleEndian.Uint64(buf[32:40])
	if len(buf) > 40 {
		a.Data = append([]byte(nil), buf[40:]...)
	}
	return a
}
