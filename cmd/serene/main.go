// Package main is the entrypoint for serene.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/morezero/serene/internal/config"
	"github.com/morezero/serene/internal/server"
	"github.com/morezero/serene/pkg/commsutil"
	"github.com/morezero/serene/pkg/db"
	"github.com/morezero/serene/pkg/transport"
)

const usage = `Usage: serene [command]
       serene serve                               Start the dispatcher (NATS, store, HTTP health).
       serene migrate up                          Create the database if missing and run migrations.
       serene migrate status                      Show migration status.
       serene clear                               Delete every stored document; schema is preserved.
       serene call <operation> <resource> [id] [body | path=value ...]
                                                  Send one dispatch request over NATS and print the reply.

Commands:
  serve           (default) Start serving dispatch requests.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  clear           Truncate the resources table.
  call            Send a request; body is a JSON object, path=value sets fields.

Environment: COMMS_URL, DISPATCH_SUBJECT, DATABASE_URL (empty = in-memory store),
MIGRATION_PATH, HTTP_ADDR / HTTP_PORT, API_VERSIONS, OTEL_ENDPOINT, LOG_LEVEL.
`

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n%s", err, usage)
			os.Exit(2)
		}
		log.Fatalf("serene: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve", "":
		return server.Run()
	case "migrate":
		if len(args) < 2 {
			return fmt.Errorf("%w: migrate requires a subcommand (up, status)", errUsage)
		}
		switch args[1] {
		case "up":
			return runMigrateUp(out)
		case "status":
			return runMigrateStatus(out)
		default:
			return fmt.Errorf("%w: unknown migrate subcommand %q (use up, status)", errUsage, args[1])
		}
	case "clear":
		return runClear(out)
	case "call":
		return runCall(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// loadDBConfig loads config and checks that DATABASE_URL is usable.
func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withPool connects to cfg.DatabaseURL and runs fn.
func withPool(cfg *config.Config, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func runMigrateUp(out io.Writer) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), cfg.DatabaseURL); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}

	return withPool(cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		fmt.Fprintf(out, "Applied %d migrations from %s\n", len(migrationSQL), cfg.MigrationPath)
		return nil
	})
}

func runMigrateStatus(out io.Writer) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	return withPool(cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
		state, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Migration status: %s\n", state)
		return nil
	})
}

func runClear(out io.Writer) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	return withPool(cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
		if err := db.ClearResources(ctx, pool); err != nil {
			return fmt.Errorf("clear resources: %w", err)
		}
		fmt.Fprintln(out, "Resources cleared")
		return nil
	})
}

func runCall(args []string, out io.Writer) error {
	req, err := parseCall(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-cli")
	if err != nil {
		return err
	}
	defer nc.Close()

	data, err := commsutil.EncodePayload(req)
	if err != nil {
		return err
	}
	msg, err := nc.Request(cfg.DispatchSubject, data, cfg.RequestTimeout+time.Second)
	if err != nil {
		return fmt.Errorf("request %s: %w", cfg.DispatchSubject, err)
	}

	var resp transport.DispatchResponse
	if err := commsutil.DecodePayload(msg.Data, &resp); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(&resp)
}

// parseCall builds the envelope for
// "call <operation> <resource> [id] [body | path=value ...]". A body
// argument must be a JSON object; path=value arguments set fields on it,
// with value taken as JSON when it parses and as a string otherwise.
func parseCall(args []string) (*transport.DispatchRequest, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: call requires <operation> <resource> [id] [body | path=value ...]", errUsage)
	}
	req := &transport.DispatchRequest{Operation: args[0], Resource: args[1]}
	if len(args) > 2 && args[2] != "" {
		req.ResourceID = args[2]
	}
	if len(args) < 4 {
		return req, nil
	}

	doc := []byte("{}")
	for i, arg := range args[3:] {
		if i == 0 && strings.HasPrefix(strings.TrimSpace(arg), "{") {
			doc = []byte(arg)
			continue
		}
		path, value, ok := strings.Cut(arg, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("%w: expected path=value, got %q", errUsage, arg)
		}
		var err error
		if gjson.Valid(value) {
			doc, err = sjson.SetRawBytes(doc, path, []byte(value))
		} else {
			doc, err = sjson.SetBytes(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errUsage, arg, err)
		}
	}

	var body map[string]any
	if err := json.Unmarshal(doc, &body); err != nil || body == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", errUsage)
	}
	req.Body = body
	return req, nil
}
