// Package config models the engine's sectioned configuration file and its
// recognized enumerations (spec.md §6). String values and parse behavior
// are grounded on original_source/dt-common/src/config/config_enums.rs,
// translated from Rust's strum::EnumString/Display derive to idiomatic Go
// String()/ParseXxx(string) functions.
package config

import "fmt"

// DbType identifies a supported endpoint database/system.
type DbType string

const (
	DbTypeMysql     DbType = `mysql`
	DbTypePg        DbType = `pg`
	DbTypeKafka     DbType = `kafka`
	DbTypeMongo     DbType = `mongo`
	DbTypeRedis     DbType = `redis`
	DbTypeStarRocks DbType = `starrocks`
	DbTypeFoxlake   DbType = `foxlake`
)

// ParseDbType parses a config-file DbType string, returning an error for
// anything not in spec.md §6's recognized set.
func ParseDbType(s string) (DbType, error) {
	switch DbType(s) {
	case DbTypeMysql, DbTypePg, DbTypeKafka, DbTypeMongo, DbTypeRedis, DbTypeStarRocks, DbTypeFoxlake:
		return DbType(s), nil
	default:
		return ``, fmt.Errorf(`config: invalid db_type: %q`, s)
	}
}

// ExtractType identifies the mode an Extractor runs in.
type ExtractType string

const (
	ExtractTypeSnapshot     ExtractType = `snapshot`
	ExtractTypeCdc          ExtractType = `cdc`
	ExtractTypeCheckLog     ExtractType = `check_log`
	ExtractTypeStruct       ExtractType = `struct`
	ExtractTypeSnapshotFile ExtractType = `snapshot_file`
	ExtractTypeScan         ExtractType = `scan`
	ExtractTypeReshard      ExtractType = `reshard`
	ExtractTypeFoxlakeS3    ExtractType = `foxlake_s3`
)

func ParseExtractType(s string) (ExtractType, error) {
	switch ExtractType(s) {
	case ExtractTypeSnapshot, ExtractTypeCdc, ExtractTypeCheckLog, ExtractTypeStruct,
		ExtractTypeSnapshotFile, ExtractTypeScan, ExtractTypeReshard, ExtractTypeFoxlakeS3:
		return ExtractType(s), nil
	default:
		return ``, fmt.Errorf(`config: invalid extract_type: %q`, s)
	}
}

// SinkType identifies the mode a Sinker runs in.
type SinkType string

const (
	SinkTypeDummy     SinkType = `dummy`
	SinkTypeWrite     SinkType = `write`
	SinkTypeCheck     SinkType = `check`
	SinkTypeStruct    SinkType = `struct`
	SinkTypeStatistic SinkType = `statistic`
	SinkTypeSql       SinkType = `sql`
	SinkTypePush      SinkType = `push`
	SinkTypeMerge     SinkType = `merge`
)

func ParseSinkType(s string) (SinkType, error) {
	switch SinkType(s) {
	case SinkTypeDummy, SinkTypeWrite, SinkTypeCheck, SinkTypeStruct,
		SinkTypeStatistic, SinkTypeSql, SinkTypePush, SinkTypeMerge:
		return SinkType(s), nil
	default:
		return ``, fmt.Errorf(`config: invalid sink_type: %q`, s)
	}
}

// ParallelType identifies the Parallelizer strategy (spec.md §4.3).
type ParallelType string

const (
	ParallelTypeSerial       ParallelType = `serial`
	ParallelTypeSnapshot     ParallelType = `snapshot`
	ParallelTypeRdbPartition ParallelType = `rdb_partition`
	ParallelTypeRdbMerge     ParallelType = `rdb_merge`
	ParallelTypeRdbCheck     ParallelType = `rdb_check`
	ParallelTypeTable        ParallelType = `table`
	ParallelTypeMongo        ParallelType = `mongo`
	ParallelTypeRedis        ParallelType = `redis`
)

func ParseParallelType(s string) (ParallelType, error) {
	switch ParallelType(s) {
	case ParallelTypeSerial, ParallelTypeSnapshot, ParallelTypeRdbPartition, ParallelTypeRdbMerge,
		ParallelTypeRdbCheck, ParallelTypeTable, ParallelTypeMongo, ParallelTypeRedis:
		return ParallelType(s), nil
	default:
		return ``, fmt.Errorf(`config: invalid parallel_type: %q`, s)
	}
}

// ConflictPolicy identifies how a Sinker error is handled (spec.md §4.4).
type ConflictPolicy string

const (
	ConflictPolicyIgnore    ConflictPolicy = `ignore`
	ConflictPolicyInterrupt ConflictPolicy = `interrupt`
)

// ParseConflictPolicy reproduces the original
// ConflictPolicyEnum::from_str's fail-safe coercion exactly: only "ignore"
// maps to ConflictPolicyIgnore; every other string, including unrecognized
// typos, maps to ConflictPolicyInterrupt. This function never returns an
// error -- that is the documented, intended behavior (spec.md §9 open
// question, resolved in SPEC_FULL.md §9: "unknown => fail-safe strict").
func ParseConflictPolicy(s string) ConflictPolicy {
	if s == string(ConflictPolicyIgnore) {
		return ConflictPolicyIgnore
	}
	return ConflictPolicyInterrupt
}
