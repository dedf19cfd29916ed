package sqlite

import (
	"database/sql"
	"fmt"

	"rplview/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullToBoolPtr converts sql.NullInt64 to *bool (NULL = nil, 0 = false)
func nullToBoolPtr(ni sql.NullInt64) *bool {
	if !ni.Valid {
		return nil
	}
	b := ni.Int64 != 0
	return &b
}

// boolPtrToNull converts *bool to sql.NullInt64
func boolPtrToNull(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	if *b {
		return sql.NullInt64{Int64: 1, Valid: true}
	}
	return sql.NullInt64{Int64: 0, Valid: true}
}

// nullToPosition returns a position only when both coordinates are set
func nullToPosition(x, y sql.NullFloat64) *domain.Position {
	if x.Valid && y.Valid {
		return &domain.Position{X: x.Float64, Y: y.Float64}
	}
	return nil
}

// positionToNull splits a position into nullable coordinates
func positionToNull(p *domain.Position) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.X, Valid: true}, sql.NullFloat64{Float64: p.Y, Valid: true}
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to node_layout:
// 1. Add field to layoutRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update layoutColumns constant - APPEND to end
// 4. Update toDomain() to map new field to domain.NodeLayout
// 5. Update layoutInsertArgs() and the upsert statement
// 6. Add migration in sqlite.go migrate()
// 7. Update relevant tests
//
// CRITICAL: Column order must match between:
// - layoutColumns constant
// - scanArgs() return slice
// - All SELECT queries using layoutColumns

// ============================================================================
// Layout Row Scanner
// ============================================================================

// layoutRow holds all columns from a node_layout query for scanning
type layoutRow struct {
	Address string
	X       sql.NullFloat64
	Y       sql.NullFloat64
	Locked  sql.NullInt64
	Name    sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match layoutColumns order exactly:
// address, x, y, locked, name
func (r *layoutRow) scanArgs() []interface{} {
	return []interface{}{
		&r.Address, // 1
		&r.X,       // 2
		&r.Y,       // 3
		&r.Locked,  // 4
		&r.Name,    // 5
	}
}

// toDomain converts the scanned row to an address and layout entry
func (r *layoutRow) toDomain() (domain.Address, domain.NodeLayout, error) {
	addr, err := domain.ParseAddress(r.Address)
	if err != nil {
		return 0, domain.NodeLayout{}, fmt.Errorf("parse address %q: %w", r.Address, err)
	}
	return addr, domain.NodeLayout{
		Position: nullToPosition(r.X, r.Y),
		Locked:   nullToBoolPtr(r.Locked),
		Name:     nullToString(r.Name),
	}, nil
}

// layoutColumns returns the SELECT column list for node_layout queries
const layoutColumns = `address, x, y, locked, name`

// ============================================================================
// Layout Write Helpers
// ============================================================================

// layoutInsertArgs returns: address, x, y, locked, name
func layoutInsertArgs(addr domain.Address, entry domain.NodeLayout) []interface{} {
	x, y := positionToNull(entry.Position)
	return []interface{}{
		addr.String(),
		x,
		y,
		boolPtrToNull(entry.Locked),
		stringToNull(entry.Name),
	}
}
