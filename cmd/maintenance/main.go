// Command maintenance runs operator tasks against the roster database:
// consistency audits, gap reports, and the corrective ledger operations.
// Results print as JSON on stdout so they can be piped into jq or filed
// with a support ticket.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"memberbase/internal/platform/config"
	"memberbase/internal/platform/logger"
	"memberbase/internal/roster/allocator"
	"memberbase/internal/roster/service"
	"memberbase/internal/roster/store"
	"memberbase/pkg/domain"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() error {
	return fmt.Errorf("usage: maintenance <audit|gaps|undo|swap|revert> [flags]")
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}

	cfg := config.FromEnv()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("MEMBERBASE_DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	st := store.NewPostgres(db)
	svc := service.New(st, allocator.New(st),
		service.WithLogger(logger.New()),
		service.WithAuditConcurrency(cfg.AuditConcurrency),
	)

	switch cmd, rest := args[0], args[1:]; cmd {
	case "audit":
		return runAudit(ctx, svc)
	case "gaps":
		return runGaps(ctx, svc)
	case "undo":
		return runUndo(ctx, svc, rest)
	case "swap":
		return runSwap(ctx, svc, rest)
	case "revert":
		return runRevert(ctx, svc, rest)
	default:
		return usage()
	}
}

func runAudit(ctx context.Context, svc *service.Service) error {
	report, err := svc.Audit(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runGaps(ctx context.Context, svc *service.Service) error {
	report, err := svc.GapReport(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runUndo(ctx context.Context, svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("undo", flag.ContinueOnError)
	memberFlag := fs.String("member", "", "member id (uuid)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	memberID, err := domain.ParseMemberID(*memberFlag)
	if err != nil {
		return err
	}

	member, err := svc.UndoLastChange(ctx, memberID)
	if err != nil {
		return err
	}
	return printJSON(member)
}

func runSwap(ctx context.Context, svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("swap", flag.ContinueOnError)
	memberFlag := fs.String("member", "", "member id (uuid)")
	expectedFlag := fs.String("expected-prior", "", "identifier expected in the latest ledger entry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	memberID, err := domain.ParseMemberID(*memberFlag)
	if err != nil {
		return err
	}

	member, err := svc.SwapIdentifiers(ctx, memberID, domain.Identifier(*expectedFlag))
	if err != nil {
		return err
	}
	return printJSON(member)
}

func runRevert(ctx context.Context, svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("revert", flag.ContinueOnError)
	memberFlag := fs.String("member", "", "member id (uuid)")
	cutoffFlag := fs.String("cutoff", "", "RFC 3339 cutoff; rows at or after it are removed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	memberID, err := domain.ParseMemberID(*memberFlag)
	if err != nil {
		return err
	}
	cutoff, err := time.Parse(time.RFC3339, *cutoffFlag)
	if err != nil {
		return fmt.Errorf("parse cutoff: %w", err)
	}

	report, err := svc.RevertWindow(ctx, memberID, cutoff)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
