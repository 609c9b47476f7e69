package rows

import (
	"context"

	"github.com/jackc/pgx/v4"

	"github.com/coldconveyor/conveyor/enumcache"
)

// Conn is the query surface rows.Store needs from either a pool or an open
// transaction. It is the same shape enumcache.Conn declares, so a *pgxpool
// wrapper or a pgx.Tx satisfies both without adapter code.
type Conn = enumcache.Conn

// Pool additionally knows how to start a transaction; only the top-level,
// non-transactional Store needs this.
type Pool interface {
	Conn
	Begin(ctx context.Context) (pgx.Tx, error)
}
