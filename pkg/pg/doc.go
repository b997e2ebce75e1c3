// Package pg bootstraps PostgreSQL access on top of github.com/jackc/pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config (populated from PG_* environment
// variables) and retries with a growing delay until the server answers a ping.
// Migrate runs github.com/pressly/goose/v3 migrations from an fs.FS, usually
// an embedded directory, through the same pool. Healthcheck returns a probe
// suitable for readiness endpoints.
//
// Transactor.WithinTx binds a pgx.Tx to a context; stores call Conn(ctx, pool)
// to run their statements inside it, so writes issued by different stores
// during one business operation commit atomically. InTx is the lower-level
// helper used by stores for their own multi-statement units.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
//
//	tx := pg.NewTransactor(pool)
//	err = tx.WithinTx(ctx, func(ctx context.Context) error {
//		// ledger and subscription store calls share the transaction
//		return nil
//	})
//
// IsDuplicateKeyError, IsSerializationError and friends classify
// *pgconn.PgError values by SQLSTATE.
package pg
