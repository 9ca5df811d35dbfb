package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RecordLoad writes the ledger row for a file inside tx
func (s *Statements) RecordLoad(ctx context.Context, tx Tx, f *LoadedFile) error {
	if f.LoadedAt.IsZero() {
		f.LoadedAt = time.Now().UTC()
	}

	var errMsg *string
	if f.Error != "" {
		errMsg = &f.Error
	}

	return s.Exec(ctx, tx, StmtLedgerUpsert,
		f.Path, f.Kind, f.ContentHash, f.SizeBytes, f.Records,
		f.Status, errMsg, f.RunID, f.LoadedAt)
}

// AlreadyLoaded reports whether path was loaded before with the same content hash
func (s *Statements) AlreadyLoaded(ctx context.Context, q Querier, path, contentHash string) (bool, error) {
	var hash, status string
	err := s.Scan(ctx, q, StmtLedgerSelect, []any{path}, &hash, &status)
	if errors.Is(err, ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == LoadStatusLoaded && hash == contentHash, nil
}

// FailedFiles lists ledger rows whose last attempt failed, ordered by path
func FailedFiles(ctx context.Context, q Querier, limit int) ([]LoadedFile, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT path, kind, COALESCE(error, ''), COALESCE(run_id, '')
		FROM load_files WHERE status = 'failed' ORDER BY path LIMIT %d`, limit))
	if err != nil {
		return nil, wrapStorage("failed files", err)
	}
	defer rows.Close()

	var files []LoadedFile
	for rows.Next() {
		f := LoadedFile{Status: LoadStatusFailed}
		if err := rows.Scan(&f.Path, &f.Kind, &f.Error, &f.RunID); err != nil {
			return nil, wrapStorage("scan failed files", err)
		}
		files = append(files, f)
	}
	return files, wrapStorage("failed files", rows.Err())
}
