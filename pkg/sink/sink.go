// Package sink defines the durable-store contract completed cases are
// handed to, plus the case-identifier generator shared by implementations.
package sink

import (
	"context"
	"errors"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/cases"
)

// ErrTableFull reports that no free row exists within the configured data
// window. It is permanent: callers must not retry it.
var ErrTableFull = errors.New("no free row within the data window")

// Sink appends one completed case record to durable storage and returns
// the generated case identifier.
type Sink interface {
	Append(ctx context.Context, rec cases.Record) (string, error)
}
