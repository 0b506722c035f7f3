// Package inventory reads the delimited device inventory file.
package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Row is one raw inventory line. Index counts data rows from zero, after the
// optional header, and is the value operators pass as the start offset.
type Row struct {
	Index  int
	Line   int
	Fields []string
}

// Load opens path and reads every row.
func Load(path string, cfg config.InventoryConfig) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening inventory: %w", err)
	}
	defer f.Close()
	return Read(f, cfg)
}

// Read parses delimited rows from r. A UTF-8 byte order mark is stripped and
// ill-formed bytes are dropped, since inventories usually come out of spreadsheets.
func Read(r io.Reader, cfg config.InventoryConfig) ([]Row, error) {
	clean := transform.NewReader(r, transform.Chain(
		unicode.BOMOverride(unicode.UTF8.NewDecoder()),
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	))

	cr := csv.NewReader(clean)
	cr.Comma = cfg.Comma()
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var rows []Row
	headerPending := cfg.SkipHeader
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading inventory: %w", err)
		}
		if headerPending {
			headerPending = false
			continue
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, Row{Index: len(rows), Line: line, Fields: rec})
	}
	return rows, nil
}

// Window returns the rows from offset onward, truncated to limit when limit > 0.
func Window(rows []Row, offset, limit int) []Row {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// Record maps a row onto a DeviceRecord using the configured columns.
func Record(row Row, cols config.InventoryColumns) (schemas.DeviceRecord, error) {
	need := max(cols.Address, cols.Port, cols.Credentials, cols.Model) + 1
	if len(row.Fields) < need {
		return schemas.DeviceRecord{}, schemas.NewError(schemas.KindInventoryRow,
			fmt.Sprintf("row has %d columns, need at least %d", len(row.Fields), need))
	}
	rec := schemas.DeviceRecord{
		Row:       row.Index,
		Address:   strings.TrimSpace(row.Fields[cols.Address]),
		Port:      strings.TrimSpace(row.Fields[cols.Port]),
		ModelName: strings.TrimSpace(row.Fields[cols.Model]),
	}
	if rec.Address == "" {
		return rec, schemas.NewError(schemas.KindInventoryRow, "empty address")
	}
	user, pass, err := ParseCredentials(row.Fields[cols.Credentials])
	if err != nil {
		return rec, err
	}
	rec.Username, rec.Password = user, pass
	return rec, nil
}

// ParseCredentials splits a credentials field. "user:pass" is split once on the
// first colon, so the password may itself contain colons. A field without a
// colon is a bare password. An empty field, or a colon form with an empty side,
// is malformed.
func ParseCredentials(field string) (username, password string, err error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return "", "", schemas.NewError(schemas.KindCredentialParse, "empty credentials")
	}
	user, pass, found := strings.Cut(field, ":")
	if !found {
		return "", field, nil
	}
	if user == "" {
		return "", "", schemas.NewError(schemas.KindCredentialParse, "empty username before colon")
	}
	if pass == "" {
		return "", "", schemas.NewError(schemas.KindCredentialParse, "empty password after colon")
	}
	return user, pass, nil
}
