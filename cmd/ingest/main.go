// Serverless intake for match results. The match server posts here through
// API Gateway; we authenticate, dedup, and store the raw result so the
// engine can apply it even if it was down when the result arrived.
package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	db          *pgxpool.Pool
	secretValue = os.Getenv("INGEST_SECRET")
)

func init() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("DATABASE_URL empty; running without DB")
		return
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		fmt.Println("pgx ParseConfig:", err)
		return
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		fmt.Println("pgxpool New:", err)
		return
	}
	db = pool
}

type resultBody struct {
	MatchID  string          `json:"match_id"`
	Season   string          `json:"season"`
	Outcomes json.RawMessage `json:"outcomes"`
}

func readSecret(req events.APIGatewayV2HTTPRequest) string {
	for _, k := range []string{"x-engine-secret", "X-Engine-Secret"} {
		if v := req.Headers[k]; v != "" {
			return v
		}
	}
	return ""
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	got := readSecret(req)
	if secretValue == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secretValue)) != 1 {
		fmt.Println("auth: unauthorized (missing/invalid secret)")
		return events.APIGatewayV2HTTPResponse{StatusCode: 401, Body: "unauthorized"}, nil
	}

	body := req.Body
	if req.IsBase64Encoded {
		dec, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{StatusCode: 400, Body: "invalid base64"}, nil
		}
		body = string(dec)
	}

	var res resultBody
	if err := json.Unmarshal([]byte(body), &res); err != nil || res.MatchID == "" || res.Season == "" {
		return events.APIGatewayV2HTTPResponse{StatusCode: 400, Body: "invalid result"}, nil
	}

	if db == nil {
		// Accept and drop; the match server will redeliver.
		return events.APIGatewayV2HTTPResponse{StatusCode: 503, Body: "storage unavailable"}, nil
	}

	// Exact-payload dedup first, then match-level store. Both are ON
	// CONFLICT DO NOTHING so redeliveries are free.
	sum := sha256.Sum256([]byte(body))
	key := hex.EncodeToString(sum[:])

	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := db.Exec(dctx, `INSERT INTO ingest_dedup(dedup_key) VALUES ($1) ON CONFLICT DO NOTHING`, key); err != nil {
		fmt.Println("dedup insert:", err)
	}

	ct, err := db.Exec(dctx,
		`INSERT INTO match_results(match_id, season, payload) VALUES ($1, $2, $3::jsonb) ON CONFLICT DO NOTHING`,
		res.MatchID, res.Season, body,
	)
	if err != nil {
		fmt.Println("result insert:", err)
		return events.APIGatewayV2HTTPResponse{StatusCode: 500, Body: "storage error"}, nil
	}
	if ct.RowsAffected() > 0 {
		// Wake the engine so it applies the result in real time.
		_, _ = db.Exec(context.Background(), `SELECT pg_notify('match_results', $1)`, res.MatchID)
		fmt.Printf("ingest: stored match=%s season=%s\n", res.MatchID, res.Season)
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{"ok":true}`,
	}, nil
}

func main() { lambda.Start(handler) }
