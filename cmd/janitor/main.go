// Scheduled cleanup of storage the engine only appends to: ingest dedup
// keys, expired queue penalties, and processed raw results. Rating history
// is the audit trail and is never pruned.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
)

func handler(ctx context.Context) (string, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "no DATABASE_URL", nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Sprintf("parse: %v", err), nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("pool: %v", err), nil
	}
	defer pool.Close()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, _ = pool.Exec(cctx, `DELETE FROM ingest_dedup WHERE received_at < now() - INTERVAL '7 days';`)
	_, _ = pool.Exec(cctx, `DELETE FROM queue_penalties WHERE until < now();`)
	_, _ = pool.Exec(cctx, `
DELETE FROM match_results
WHERE processed_at IS NOT NULL
  AND received_at < now() - INTERVAL '30 days';`)

	return "ok", nil
}

func main() { lambda.Start(handler) }
