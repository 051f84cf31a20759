//go:build tools

// Package tools pins the code generators used by the repository.
// Mocks under pkg/**/mocks are regenerated with:
//
//	go run github.com/vektra/mockery/v2 --dir pkg/storage --name InvoiceStore --output pkg/storage/mocks
package tools

import (
	_ "github.com/vektra/mockery/v2"
)
