package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request/operation context with an optional open transaction.
// A nil Tx means "use the repo's own *gorm.DB handle".
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
