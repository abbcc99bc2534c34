// Package sheets defines the spreadsheet sink used by exports.
package sheets

import "context"

// Ports for outbound adapters.
type (
	// RowWriter replaces the content of a named sheet with rows. The first
	// row is the header.
	RowWriter interface {
		WriteRows(ctx context.Context, sheet string, rows [][]any) (ref string, err error)
	}
)
