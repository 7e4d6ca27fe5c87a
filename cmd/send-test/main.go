// Package main provides a standalone CLI for sending personalized test
// emails through the configured delivery transport. Test sends carry no
// tracking beacon and write nothing to the campaign tables.
//
// Usage:
//
//	send-test --to qa@example.com --subject "Hi {{firstName}}" --content "<p>Hello {{firstName}}</p>"
//	send-test --campaign 6f1c... --to qa@example.com --first-name Ana --var coupon=SAVE10
//	send-test --provider stdout --to a@example.com --to b@example.com --count 5 --rate 2
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/sungwon/campaign-dispatch/internal/bootstrap"
	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

type options struct {
	configDir string
	provider  string
	campaign  string
	to        stringSlice
	subject   string
	content   string
	firstName string
	lastName  string
	vars      stringSlice
	count     int
	rate      float64
}

// stringSlice implements flag.Value for repeatable flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	opts := parseFlags()

	if len(opts.to) == 0 {
		fmt.Fprintln(os.Stderr, "error: at least one --to is required")
		flag.Usage()
		os.Exit(2)
	}
	if opts.campaign == "" && opts.content == "" {
		fmt.Fprintln(os.Stderr, "error: --campaign or --content is required")
		flag.Usage()
		os.Exit(2)
	}
	vars, err := parseVars(opts.vars)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if opts.provider != "" {
		cfg.Provider.Type = opts.provider
	}

	log := bootstrap.Logger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Campaign content lives in the database; raw content does not need it.
	var store dispatch.Store
	if opts.campaign != "" {
		db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		store = db.Queries()
	}

	dispatcher := bootstrap.NewDispatcher(cfg, store, nil, log)

	fmt.Printf("Test Send\n")
	fmt.Printf("  Provider: %s\n", cfg.Provider.Type)
	if opts.campaign != "" {
		fmt.Printf("  Campaign: %s\n", opts.campaign)
	}
	fmt.Printf("  To:       %s\n", opts.to.String())
	fmt.Printf("  Count:    %d\n", opts.count)
	fmt.Println()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rate), 1)
	}

	var (
		successCount int
		failCount    int
		totalSend    time.Duration
	)
	total := opts.count * len(opts.to)
	seq := 0
	for i := 0; i < opts.count; i++ {
		for _, to := range opts.to {
			seq++
			if err := limiter.Wait(ctx); err != nil {
				fmt.Printf("  interrupted: %v\n", err)
				os.Exit(1)
			}

			req := dispatch.TestSend{
				CampaignID: opts.campaign,
				Subject:    opts.subject,
				Content:    opts.content,
				To:         to,
				Recipient:  domain.Recipient{FirstName: opts.firstName, LastName: opts.lastName},
				Vars:       vars,
			}
			if opts.count > 1 && req.Subject != "" {
				req.Subject = fmt.Sprintf("%s [%d/%d]", req.Subject, i+1, opts.count)
			}

			sendStart := time.Now()
			res, err := dispatcher.SendTest(ctx, req)
			sendDuration := time.Since(sendStart)
			totalSend += sendDuration

			if err != nil {
				failCount++
				fmt.Printf("  [%d/%d] FAIL %s (%s): %v\n", seq, total, to, sendDuration, err)
				continue
			}
			successCount++
			fmt.Printf("  [%d/%d] OK   %s (%s) id=%s\n", seq, total, to, sendDuration, res.ProviderMessageID)
		}
	}

	fmt.Println()
	fmt.Printf("Results: %d sent, %d failed, total time %s\n", successCount, failCount, totalSend)

	if failCount > 0 {
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configDir, "config", "config", "Directory containing config.yaml")
	flag.StringVar(&opts.provider, "provider", "", "Override provider.type (e.g. stdout, file, smtp)")
	flag.StringVar(&opts.campaign, "campaign", "", "Campaign ID whose content is sent")
	flag.Var(&opts.to, "to", "Recipient email address (can be specified multiple times)")
	flag.StringVar(&opts.subject, "subject", "", "Subject; overrides the campaign subject")
	flag.StringVar(&opts.content, "content", "", "HTML content; overrides the campaign content")
	flag.StringVar(&opts.firstName, "first-name", "", "Sample first name for personalization")
	flag.StringVar(&opts.lastName, "last-name", "", "Sample last name for personalization")
	flag.Var(&opts.vars, "var", "Custom variable as key=value (can be specified multiple times)")
	flag.IntVar(&opts.count, "count", 1, "Number of rounds to send to every --to address")
	flag.Float64Var(&opts.rate, "rate", 0, "Emails per second; 0 sends as fast as possible")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: send-test [options]\n\n")
		fmt.Fprintf(os.Stderr, "Sends personalized test emails through the configured transport.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  send-test --to qa@example.com --content \"<p>Hi {{firstName}}</p>\" --first-name Ana\n")
		fmt.Fprintf(os.Stderr, "  send-test --campaign <id> --to qa@example.com --var coupon=SAVE10\n")
		fmt.Fprintf(os.Stderr, "  send-test --provider stdout --count 10 --rate 5 --to qa@example.com --content hi\n")
	}

	flag.Parse()
	if opts.count < 1 {
		opts.count = 1
	}
	return opts
}

// parseVars turns key=value pairs into a variable map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", p)
		}
		vars[strings.TrimSpace(k)] = v
	}
	return vars, nil
}
