// Package foxlake implements the Foxlake/analytical Sinker specialization
// (spec.md §4.4 "Foxlake/analytical sink specialization"), grounded on
// original_source/dt-connector/src/sinker/foxlake/foxlake_merger.rs: events
// carrying FileBatch payloads are accumulated up to merge_batch_file_count,
// their insert_only flags ANDed together, and a single MERGE INTO TABLE ...
// statement issued against the target engine referencing the staged S3
// file set.
package foxlake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/programlife555/ape-dts/internal/event"
)

// S3Config carries the staged-file endpoint/credentials the MERGE
// statement's USING URI / CREDENTIALS clauses reference, mirroring the
// original's S3Config{root_url, endpoint, access_key, secret_key}.
type S3Config struct {
	RootURL   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// objectChecker is the narrow S3 port this sinker depends on: confirming a
// staged file actually exists before referencing it in a MERGE, so a race
// between the staging writer and this sinker surfaces as a clear error
// instead of a silently-wrong merge. *s3.S3 satisfies this directly.
type objectChecker interface {
	HeadObjectWithContext(ctx aws.Context, input *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error)
}

// execer is the MERGE-issuing port: *sql.DB satisfies it directly (Foxlake
// targets are reached over the MySQL wire protocol, same as the original's
// sqlx::Pool<MySql>).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Merger is the Foxlake Sinker.
type Merger struct {
	db              execer
	s3              S3Config
	checker         objectChecker // nil disables the pre-merge existence check
	mergeBatchFiles int
}

// NewMerger builds a Merger. mergeBatchFiles bounds how many staged files
// are referenced by a single MERGE statement (config.SinkerSection.MergeBatchFileCount);
// values <= 0 default to 1. checker may be nil to skip the staged-file
// existence check (e.g. in tests, or against engines that don't expose S3
// directly).
func NewMerger(db execer, s3cfg S3Config, checker objectChecker, mergeBatchFiles int) *Merger {
	if mergeBatchFiles <= 0 {
		mergeBatchFiles = 1
	}
	return &Merger{db: db, s3: s3cfg, checker: checker, mergeBatchFiles: mergeBatchFiles}
}

// fileBatchGroup accumulates FileBatch events destined for one (schema,
// table) MERGE statement.
type fileBatchGroup struct {
	table      event.TableName
	files      []string
	rowCount   int64
	byteSize   int64
	insertOnly []bool // per file, parallel to files
}

func newFileBatchGroup(table event.TableName) *fileBatchGroup {
	return &fileBatchGroup{table: table}
}

func (g *fileBatchGroup) add(e event.Event) {
	g.files = append(g.files, e.FileURI)
	g.rowCount += e.FileRowCount
	g.byteSize += e.FileByteSize
	g.insertOnly = append(g.insertOnly, e.FileInsertOnly)
}

// Sink applies batch: FileBatch events are grouped by table, chunked to
// mergeBatchFiles, and each chunk issued as one MERGE statement.
// Non-FileBatch events (heartbeats, checkpoint markers) are skipped --
// Foxlake is a pure analytical target with no row-level apply path.
func (m *Merger) Sink(ctx context.Context, batch []event.Event, isMerged bool) error {
	groups := make(map[event.TableName]*fileBatchGroup)
	var order []event.TableName

	flushGroup := func(g *fileBatchGroup) error {
		for len(g.files) > 0 {
			n := m.mergeBatchFiles
			if n > len(g.files) {
				n = len(g.files)
			}
			chunk := g.files[:n]
			g.files = g.files[n:]
			chunkInsertOnly := true
			for _, v := range g.insertOnly[:n] {
				chunkInsertOnly = chunkInsertOnly && v
			}
			g.insertOnly = g.insertOnly[n:]

			if m.checker != nil {
				if err := m.verifyFiles(ctx, chunk); err != nil {
					return err
				}
			}
			if err := m.merge(ctx, g.table, chunk, chunkInsertOnly); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range batch {
		if e.Kind != event.KindFileBatch {
			continue
		}
		g, ok := groups[e.Table]
		if !ok {
			g = newFileBatchGroup(e.Table)
			groups[e.Table] = g
			order = append(order, e.Table)
		}
		g.add(e)
	}

	for _, t := range order {
		if err := flushGroup(groups[t]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merger) verifyFiles(ctx context.Context, files []string) error {
	for _, f := range files {
		key := strings.TrimPrefix(f, `/`)
		_, err := m.checker.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(m.s3.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf(`foxlake: staged file %q not found in bucket %q: %w`, key, m.s3.Bucket, err)
		}
	}
	return nil
}

// merge builds and executes the MERGE INTO TABLE statement for one chunk
// of staged files against one table, per
// foxlake_merger.rs's batch_merge.
func (m *Merger) merge(ctx context.Context, table event.TableName, files []string, insertOnly bool) error {
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = `'` + strings.ReplaceAll(f, `'`, `''`) + `'`
	}
	flag := `FALSE`
	if insertOnly {
		flag = `TRUE`
	}
	sqlStr := fmt.Sprintf(
		"MERGE INTO TABLE `%s`.`%s` USING URI = '%s/' ENDPOINT = '%s' CREDENTIALS = (ACCESS_KEY_ID='%s' SECRET_ACCESS_KEY='%s') FILES=(%s) FILE_FORMAT = (TYPE='DML_CHANGE_LOG') INSERT_ONLY = %s;",
		table.Schema, table.Table, m.s3.RootURL, m.s3.Endpoint, m.s3.AccessKey, m.s3.SecretKey,
		strings.Join(quoted, `,`), flag,
	)
	if _, err := m.db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf(`foxlake: merge %s.%s failed: %w`, table.Schema, table.Table, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (m *Merger) Close() error {
	return m.db.Close()
}
