// Package construction builds the snapshot database: per-table databases are
// filled from CSV dumps of the upstream database, then assembled into the
// single file the query API reads.
package construction

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gorm.io/gorm"

	apperrors "github.com/indralab/dblite/internal/errors"
	"github.com/indralab/dblite/internal/logger"
)

// insertBatchSize is the number of CSV rows bound into one INSERT.
const insertBatchSize = 500

// disallowedKeywords are SQL keywords that can modify a database or its
// settings. Queries passed to QueryToCSV must not contain any of them.
var disallowedKeywords = []string{
	"alter", "call", "commit", "create", "delete", "drop", "explain",
	"grant", "insert", "lock", "merge", "rename", "revoke", "savepoint",
	"set", "rollback", "transaction", "truncate", "update",
}

// FindDisallowedKeywords returns the disallowed keywords present in query,
// if any. Matching is case insensitive and token based, so it is a guard
// against accidents rather than a complete defence.
func FindDisallowedKeywords(query string) []string {
	tokens := make(map[string]bool)
	for _, token := range strings.Fields(query) {
		tokens[strings.ToLower(token)] = true
	}
	var found []string
	for _, keyword := range disallowedKeywords {
		if tokens[keyword] {
			found = append(found, keyword)
		}
	}
	return found
}

// QueryToCSV dumps the rows of a read-only query into a gzip-compressed CSV
// file without a header, matching the format ImportCSV consumes.
func QueryToCSV(db *gorm.DB, query string, outPath string) error {
	if found := FindDisallowedKeywords(query); len(found) > 0 {
		return apperrors.New(apperrors.ErrInvalidParams,
			fmt.Sprintf("query uses disallowed keywords: %s", strings.Join(found, ", ")))
	}

	rows, err := db.Raw(query).Rows()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabaseQuery, "csv dump query failed", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabaseQuery, "failed to read result columns", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to create csv file", err)
	}
	defer out.Close()

	gzWriter := gzip.NewWriter(out)
	csvWriter := csv.NewWriter(gzWriter)

	values := make([]sql.RawBytes, len(columns))
	scanArgs := make([]interface{}, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	record := make([]string, len(columns))

	count := 0
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return apperrors.Wrap(apperrors.ErrDatabaseQuery, "failed to scan result row", err)
		}
		for i, v := range values {
			record[i] = string(v)
		}
		if err := csvWriter.Write(record); err != nil {
			return apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to write csv record", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabaseQuery, "csv dump query failed", err)
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to flush csv output", err)
	}
	if err := gzWriter.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to finish gzip output", err)
	}

	logger.WithField("rows", count).Infof("dumped query results to %s", outPath)
	return nil
}

// ImportCSV loads a headerless CSV file into an existing snapshot table.
// Records are bound positionally, so the file's column order must match the
// table definition. Gzip-compressed files are detected by extension.
func ImportCSV(db *gorm.DB, csvPath string, table string, columns []string) error {
	if _, ok := tableDDL[table]; !ok {
		return apperrors.New(apperrors.ErrInvalidParams, "unknown snapshot table: "+table)
	}

	in, err := os.Open(csvPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabaseInsert, "failed to open csv file", err)
	}
	defer in.Close()

	var reader io.Reader = in
	if strings.HasSuffix(csvPath, ".gz") {
		gzReader, err := gzip.NewReader(in)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrDatabaseInsert, "failed to open gzip csv file", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = len(columns)

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	insertPrefix := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "),
	)

	var (
		placeholders []string
		args         []interface{}
		total        int
	)
	flush := func() error {
		if len(placeholders) == 0 {
			return nil
		}
		stmt := insertPrefix + strings.Join(placeholders, ", ")
		if err := db.Exec(stmt, args...).Error; err != nil {
			return apperrors.Wrapf(apperrors.ErrDatabaseInsert, err, "failed to insert into %s", table)
		}
		total += len(placeholders)
		placeholders = placeholders[:0]
		args = args[:0]
		return nil
	}

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperrors.Wrap(apperrors.ErrDatabaseInsert, "failed to read csv record", err)
		}
		placeholders = append(placeholders, placeholder)
		for _, field := range record {
			// Empty fields become NULL so integer columns stay clean.
			if field == "" {
				args = append(args, nil)
			} else {
				args = append(args, field)
			}
		}
		if len(placeholders) >= insertBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	logger.WithField("rows", total).Infof("imported %s into %s", csvPath, table)
	return nil
}
