// Command ironctl exercises a product's licensing from the command line:
// validate or activate a key, start a trial, release this machine, or list
// the purchasable tiers. Credentials come from flags or the IRONLICENSING_*
// environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ironlicensing/ironlicensing-go"
)

func main() {
	publicKey := flag.String("public-key", "", "product public key (or IRONLICENSING_PUBLIC_KEY)")
	productSlug := flag.String("product", "", "product slug (or IRONLICENSING_PRODUCT_SLUG)")
	baseURL := flag.String("api-url", "", "licensing service base URL (defaults to the hosted service)")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(*debug),
	}))
	slog.SetDefault(logger)

	opts, err := ironlicensing.OptionsFromEnv()
	if err != nil {
		logger.Error("failed to read environment configuration", "error", err)
		os.Exit(1)
	}
	if *publicKey != "" {
		opts.PublicKey = *publicKey
	}
	if *productSlug != "" {
		opts.ProductSlug = *productSlug
	}
	if *baseURL != "" {
		opts.APIBaseURL = *baseURL
	}
	opts.HTTPTimeout = *timeout
	opts.Debug = *debug
	opts.Logger = logger

	client, err := ironlicensing.New(opts)
	if err != nil {
		logger.Error("failed to initialize licensing client", "error", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, client, args); err != nil {
		logger.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *ironlicensing.Client, args []string) error {
	switch args[0] {
	case "validate":
		if len(args) < 2 {
			return fmt.Errorf("usage: validate <license-key>")
		}
		return report(client.Validate(ctx, args[1]))

	case "activate":
		if len(args) < 2 {
			return fmt.Errorf("usage: activate <license-key> [machine-name]")
		}
		name := ""
		if len(args) > 2 {
			name = args[2]
		}
		return report(client.ActivateWithName(ctx, args[1], name))

	case "deactivate":
		if !client.Deactivate(ctx) {
			return fmt.Errorf("no active license to release, or the service declined")
		}
		fmt.Println("machine released")
		return nil

	case "trial":
		if len(args) < 2 {
			return fmt.Errorf("usage: trial <email>")
		}
		return report(client.StartTrial(ctx, args[1]))

	case "tiers":
		tiers := client.GetTiers(ctx)
		if len(tiers) == 0 {
			fmt.Println("no tiers available")
			return nil
		}
		for _, tier := range tiers {
			fmt.Printf("%s\t%s\t%.2f %s\n", tier.ID, tier.Name, tier.Price, tier.Currency)
		}
		return nil

	case "machine-id":
		fmt.Println(client.MachineID())
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// report prints the outcome of a licensing operation in a shell-friendly
// form and turns rejections into a non-zero exit.
func report(result ironlicensing.LicenseResult) error {
	if !result.Valid {
		if result.Error != "" {
			return fmt.Errorf("%s", result.Error)
		}
		return fmt.Errorf("license not valid")
	}

	license := result.License
	fmt.Printf("status\t%s\n", license.Status)
	fmt.Printf("type\t%s\n", license.Type)
	if license.ExpiresAt != "" {
		fmt.Printf("expires\t%s\n", license.ExpiresAt)
	}
	for _, feature := range license.Features {
		fmt.Printf("feature\t%s\tenabled=%t\n", feature.Key, feature.Enabled)
	}
	if result.Cached {
		fmt.Println("(served from offline cache)")
	}
	return nil
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: ironctl [flags] <command>

commands:
  validate <license-key>              check a key without binding it
  activate <license-key> [machine]    bind a key to this machine
  deactivate                          release this machine's activation
  trial <email>                       request a trial license
  tiers                               list purchasable tiers
  machine-id                          print this machine's identifier

flags:`)
	flag.PrintDefaults()
}
