package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fr0stylo/photomigrate/internal/app/ports"
	"github.com/fr0stylo/photomigrate/internal/observability"
)

const (
	// DefaultIndexObject is the CRM object carrying the external identifier.
	DefaultIndexObject = "Account"
	// DefaultIdentifierField is the external identifier field on DefaultIndexObject.
	DefaultIdentifierField = "Identifier__c"
	// DefaultIndexLimit caps the number of records loaded into the index.
	DefaultIndexLimit = 20000

	recordIDField = "Id"
)

// Index maps an external identifier to its CRM record id. Read-only after BuildIndex.
type Index map[string]string

// Lookup returns the record id for an identifier.
func (idx Index) Lookup(identifier string) (string, bool) {
	recordID, ok := idx[identifier]
	return recordID, ok
}

// IndexQuery selects which CRM records feed the index.
type IndexQuery struct {
	Object          string
	IdentifierField string
	Limit           int
}

func (q IndexQuery) normalized() IndexQuery {
	q.Object = strings.TrimSpace(q.Object)
	if q.Object == "" {
		q.Object = DefaultIndexObject
	}
	q.IdentifierField = strings.TrimSpace(q.IdentifierField)
	if q.IdentifierField == "" {
		q.IdentifierField = DefaultIdentifierField
	}
	if q.Limit <= 0 {
		q.Limit = DefaultIndexLimit
	}
	return q
}

// SOQL renders the bulk query. Records past Limit never reach the index.
func (q IndexQuery) SOQL() string {
	q = q.normalized()
	return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s != null LIMIT %d",
		recordIDField, q.IdentifierField, q.Object, q.IdentifierField, q.Limit)
}

// BuildIndex issues one bulk query and maps identifier to record id.
// Identifiers are kept verbatim. Records with a blank identifier or id are
// skipped; duplicate identifiers keep the last record.
func BuildIndex(ctx context.Context, querier ports.RecordQuerier, query IndexQuery) (Index, error) {
	query = query.normalized()
	ctx, span := observability.StartIndexSpan(ctx, query.Object, query.Limit)
	defer span.End()

	records, err := querier.QueryAll(ctx, query.SOQL())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrIndexBuildFailed, err)
	}

	index := make(Index, len(records))
	for _, rec := range records {
		identifier := fieldString(rec, query.IdentifierField)
		recordID := fieldString(rec, recordIDField)
		if strings.TrimSpace(identifier) == "" || strings.TrimSpace(recordID) == "" {
			continue
		}
		index[identifier] = recordID
	}
	return index, nil
}

func fieldString(rec ports.Record, field string) string {
	value, ok := rec[field]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
