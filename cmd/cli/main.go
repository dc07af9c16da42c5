package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-capture/internal/app"
	"github.com/dvloznov/finance-capture/internal/capture"
	"github.com/dvloznov/finance-capture/internal/config"
	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/linking"
	"github.com/dvloznov/finance-capture/internal/logger"
	"github.com/dvloznov/finance-capture/internal/parser"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/dvloznov/finance-capture/internal/usage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)

	switch os.Args[1] {
	case "parse":
		runParse(os.Args[2:])
	case "capture":
		runCapture(cfg, log)
	case "list":
		runList(cfg, log)
	case "link-code":
		runLinkCode(cfg, log)
	case "usage":
		runUsage(cfg, log)
	case "account-add":
		runAccountAdd(cfg, log)
	case "notion-backfill":
		runNotionBackfill(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Capture CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  parse            Run the heuristic parser on a line of text")
	fmt.Println("  capture          Capture an utterance through the full pipeline")
	fmt.Println("  list             List a user's recent transactions")
	fmt.Println("  link-code        Generate a one-time Telegram link code")
	fmt.Println("  usage            Show today's voice usage for a user")
	fmt.Println("  account-add      Add an account label (sqlite only)")
	fmt.Println("  notion-backfill  Mirror stored transactions into Notion")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) store.Store {
	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	return st
}

func runParse(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli parse <text>")
		os.Exit(1)
	}

	res := parser.Parse(text)
	fmt.Printf("Direction: %s\n", res.Direction)
	if res.Amount.Valid {
		fmt.Printf("Amount:    %s\n", res.Amount.Decimal.String())
	} else {
		fmt.Println("Amount:    (none)")
	}
	fmt.Printf("Note:      %s\n", res.Note)
	if res.Category != nil {
		fmt.Printf("Category:  %s\n", *res.Category)
	}
}

func runCapture(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	userID := fs.String("user", "", "User ID that owns the transaction")
	fs.Parse(os.Args[2:])

	text := strings.Join(fs.Args(), " ")
	if *userID == "" || text == "" {
		log.Fatal().Msg("Usage: cli capture -user ID <text>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st := openStore(ctx, cfg, log)
	defer st.Close()

	svc, err := app.NewCaptureService(ctx, cfg, st, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create capture service")
	}

	res := svc.Capture(ctx, capture.Request{UserID: *userID, Transcript: text, Source: domain.SourceCLI})
	fmt.Println(res.Reply)
	if res.Transaction != nil {
		fmt.Printf("Transaction ID: %s\n", res.Transaction.ID)
	}
	if res.Outcome == capture.OutcomeStoreFailed {
		os.Exit(1)
	}
}

func runList(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	limit := fs.Int("limit", 20, "Maximum number of transactions")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx := context.Background()
	st := openStore(ctx, cfg, log)
	defer st.Close()

	txs, err := st.ListTransactions(ctx, *userID, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(txs))
	for i, tx := range txs {
		amount := "pending"
		if tx.Amount.Valid {
			amount = cfg.CurrencySymbol + tx.Amount.Decimal.StringFixed(2)
		}
		fmt.Printf("\n%d. %s\n", i+1, tx.Note)
		fmt.Printf("   Date:      %s\n", tx.OccurredAt.Format(time.RFC3339))
		fmt.Printf("   Amount:    %s (%s)\n", amount, tx.Direction)
		if tx.Category != nil {
			fmt.Printf("   Category:  %s\n", *tx.Category)
		}
		fmt.Printf("   Source:    %s\n", tx.Source)
	}
	fmt.Println()
}

func runLinkCode(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("link-code", flag.ExitOnError)
	userID := fs.String("user", "", "User ID to link")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx := context.Background()
	st := openStore(ctx, cfg, log)
	defer st.Close()

	code, err := linking.NewService(st, log).Generate(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate link code")
	}

	fmt.Printf("Code:    %s\n", code.Code)
	fmt.Printf("Expires: %s\n", code.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("Send \"/link %s\" to the bot.\n", code.Code)
}

func runUsage(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx := context.Background()
	st := openStore(ctx, cfg, log)
	defer st.Close()

	limiter := usage.NewLimiter(st, cfg.MaxVoicePerDay, log, usage.WithLocation(cfg.UsageLocation()))
	count, err := limiter.Count(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read usage")
	}

	fmt.Printf("%s voice notes on %s: %d/%d\n", *userID, limiter.Today(), count, limiter.Max())
}

// accountAdder is implemented by backends that accept new account labels.
type accountAdder interface {
	AddAccountLabel(ctx context.Context, userID string, label domain.AccountLabel) error
}

func runAccountAdd(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("account-add", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	label := fs.String("label", "", "Short label, e.g. HDFC")
	name := fs.String("name", "", "Display name, e.g. HDFC Credit Card")
	fs.Parse(os.Args[2:])

	if *userID == "" || (*label == "" && *name == "") {
		log.Fatal().Msg("Usage: cli account-add -user ID -label LABEL [-name NAME]")
	}

	ctx := context.Background()
	st := openStore(ctx, cfg, log)
	defer st.Close()

	adder, ok := st.(accountAdder)
	if !ok {
		log.Fatal().Str("store", cfg.StoreBackend).Msg("This store does not support adding accounts")
	}

	if err := adder.AddAccountLabel(ctx, *userID, domain.AccountLabel{Label: *label, Name: *name}); err != nil {
		log.Fatal().Err(err).Msg("Failed to add account")
	}

	fmt.Println("Account added.")
}

func runNotionBackfill(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("notion-backfill", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	limit := fs.Int("limit", 500, "Maximum number of transactions to mirror")
	dryRun := fs.Bool("dry-run", false, "Report what would be created without writing to Notion")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	mirror := app.NewMirror(cfg)
	if mirror == nil {
		log.Fatal().Msg("NOTION_TOKEN and NOTION_DATABASE_ID are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(ctx, cfg, log)
	defer st.Close()

	res, err := mirror.Backfill(ctx, st, *userID, *limit, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Backfill failed")
	}

	fmt.Println("\n=== Backfill Summary ===")
	fmt.Printf("Total:   %d\n", res.Total)
	fmt.Printf("Created: %d\n", res.Created)
	fmt.Printf("Skipped: %d\n", res.Skipped)
	fmt.Printf("Failed:  %d\n", res.Failed)
	if *dryRun {
		fmt.Println("(dry run, nothing written)")
	}
}
