package event

import (
	"encoding/json"
	"fmt"
)

// PositionKind tags the source-engine variant carried by a Position.
type PositionKind uint8

const (
	PositionNone PositionKind = iota
	PositionBinlog
	PositionLSN
	PositionMongoResumeToken
	PositionRedisOffset
)

// Position is a variant over the cursor representations of every supported
// source engine (spec.md §3). Positions within one source are totally
// ordered (Compare); positions of different variants (or different binlog
// GTID sets with no common basis) are incomparable, reported via the second
// Compare return value.
type Position struct {
	Kind PositionKind

	// Binlog fields.
	BinlogFile   string
	BinlogOffset uint64
	GTIDSet      string // optional; empty if the source doesn't use GTID mode

	// LSN field (PostgreSQL logical replication).
	LSN uint64

	// MongoResumeToken is an opaque resume-token byte string.
	MongoResumeToken []byte

	// Redis replication identity + offset.
	RedisReplicationID string
	RedisOffset        uint64
}

func BinlogPosition(file string, offset uint64, gtidSet string) Position {
	return Position{Kind: PositionBinlog, BinlogFile: file, BinlogOffset: offset, GTIDSet: gtidSet}
}

func LSNPosition(lsn uint64) Position {
	return Position{Kind: PositionLSN, LSN: lsn}
}

func MongoPosition(token []byte) Position {
	return Position{Kind: PositionMongoResumeToken, MongoResumeToken: append([]byte(nil), token...)}
}

func RedisPosition(replicationID string, offset uint64) Position {
	return Position{Kind: PositionRedisOffset, RedisReplicationID: replicationID, RedisOffset: offset}
}

// Compare returns -1/0/1 if p precedes/equals/follows other, and ok=true,
// provided both positions are comparable (same Kind, and for binlog
// positions the same GTID set basis -- an empty GTID set is always
// comparable via file+offset). Mixed kinds, or binlog positions reporting
// different non-empty GTID sets, return ok=false (spec.md §3: "positions of
// different variants are incomparable").
func (p Position) Compare(other Position) (result int, ok bool) {
	if p.Kind != other.Kind {
		return 0, false
	}
	switch p.Kind {
	case PositionNone:
		return 0, true
	case PositionBinlog:
		if p.GTIDSet != `` && other.GTIDSet != `` && p.GTIDSet != other.GTIDSet {
			return 0, false
		}
		if p.BinlogFile != other.BinlogFile {
			if p.BinlogFile < other.BinlogFile {
				return -1, true
			}
			return 1, true
		}
		return compareUint64(p.BinlogOffset, other.BinlogOffset), true
	case PositionLSN:
		return compareUint64(p.LSN, other.LSN), true
	case PositionMongoResumeToken:
		return compareBytes(p.MongoResumeToken, other.MongoResumeToken), true
	case PositionRedisOffset:
		if p.RedisReplicationID != other.RedisReplicationID {
			return 0, false
		}
		return compareUint64(p.RedisOffset, other.RedisOffset), true
	default:
		return 0, false
	}
}

// Less reports whether p strictly precedes other under the same-variant
// total order; incomparable positions report false.
func (p Position) Less(other Position) bool {
	result, ok := p.Compare(other)
	return ok && result < 0
}

func (p Position) String() string {
	switch p.Kind {
	case PositionNone:
		return `none`
	case PositionBinlog:
		if p.GTIDSet != `` {
			return fmt.Sprintf(`binlog(%s:%d,gtid=%s)`, p.BinlogFile, p.BinlogOffset, p.GTIDSet)
		}
		return fmt.Sprintf(`binlog(%s:%d)`, p.BinlogFile, p.BinlogOffset)
	case PositionLSN:
		return fmt.Sprintf(`lsn(%d)`, p.LSN)
	case PositionMongoResumeToken:
		return fmt.Sprintf(`mongo(% x)`, p.MongoResumeToken)
	case PositionRedisOffset:
		return fmt.Sprintf(`redis(%s:%d)`, p.RedisReplicationID, p.RedisOffset)
	default:
		return `invalid`
	}
}

// MarshalBinary encodes p for storage in a checkpoint record's
// position_bytes field (spec.md §6: "A small record: { db_type,
// position_bytes, commit_ts, updated_at }").
func (p Position) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalBinary decodes a Position previously produced by MarshalBinary.
func (p *Position) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
