package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pdfveille/docpipe"
	"github.com/hazyhaar/pdfveille/kit"
	"github.com/hazyhaar/pdfveille/observability"
	"github.com/hazyhaar/pdfveille/veille"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const defaultFeedURL = "https://www.parlement-wallonie.be/actu/rss_doc_generator.php"

var rootCmd = &cobra.Command{
	Use:          "pdfveille",
	Short:        "Keyword search over the PDF documents of a publication feed",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pdfveille %s\n", Version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest the feed and serve the search page, JSON API and MCP endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var searchCmd = &cobra.Command{
	Use:   "search <word>...",
	Short: "Ingest the feed once and print the occurrences of the given words",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var publicationsCmd = &cobra.Command{
	Use:   "publications",
	Short: "Ingest the feed once and print the status of every publication",
	Args:  cobra.NoArgs,
	RunE:  runPublications,
}

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Print the text of a local PDF file, page by page",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var (
	flagConfig   string
	flagFeed     string
	flagLogLevel string
	flagEventsDB string
	flagPort     string
	flagPrefetch bool
	flagJSON     bool
	flagExtract  bool
)

func init() {
	rootCmd.AddCommand(versionCmd, serveCmd, searchCmd, publicationsCmd, extractCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", env("PDFVEILLE_CONFIG", ""), "YAML configuration file")
	pf.StringVar(&flagFeed, "feed", env("FEED_URL", ""), "feed URL (overrides the configuration)")
	pf.StringVar(&flagLogLevel, "log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	pf.StringVar(&flagEventsDB, "events-db", env("EVENTS_DB", ""), "SQLite file for document events")

	serveCmd.Flags().StringVarP(&flagPort, "port", "p", env("PORT", "8085"), "HTTP listen port")
	serveCmd.Flags().BoolVar(&flagPrefetch, "prefetch", false, "extract every publication in the background after ingestion")

	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "print results as JSON")
	publicationsCmd.Flags().BoolVar(&flagExtract, "extract", false, "extract every publication before reporting")
	extractCmd.Flags().BoolVar(&flagJSON, "json", false, "print the document as JSON")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig() (*veille.Config, error) {
	cfg := veille.DefaultConfig()
	if flagConfig != "" {
		c, err := veille.LoadConfigFile(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if flagFeed != "" {
		cfg.FeedURL = flagFeed
	}
	if cfg.FeedURL == "" {
		cfg.FeedURL = defaultFeedURL
	}
	if flagEventsDB != "" {
		cfg.EventsDB = flagEventsDB
	}
	if flagPrefetch {
		cfg.Prefetch = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openOnce builds the application and ingests the feed for one-shot commands.
// Logs go to stderr so stdout stays machine-readable.
func openOnce(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, os.Stderr, flagLogLevel)
	if err != nil {
		return nil, err
	}
	if _, err := a.svc.IngestURL(ctx, ""); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	ctx = kit.WithTransport(ctx, kit.TransportCLI)

	a, err := openOnce(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	results, err := a.svc.Search(ctx, query)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), veille.SearchResponse{Query: query, Results: nonNil(results)})
	}
	printResults(cmd.OutOrStdout(), results)
	return nil
}

func runPublications(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	ctx = kit.WithTransport(ctx, kit.TransportCLI)

	a, err := openOnce(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if flagExtract {
		if err := a.svc.Prefetch(ctx); err != nil {
			return err
		}
	}
	pubs, err := a.svc.Publications(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), pubs)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	ctx = kit.WithTransport(ctx, kit.TransportCLI)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pipe := docpipe.New(docpipe.Config{
		MaxFileSize: cfg.MaxDocumentBytes,
		Logger:      observability.NewLogger(cmd.ErrOrStderr(), flagLogLevel),
	})
	doc, err := pipe.ExtractFile(ctx, args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), doc)
	}
	w := cmd.OutOrStdout()
	for _, pg := range doc.Pages {
		fmt.Fprintf(w, "--- page %d ---\n%s\n", pg.Number, pg.Text)
	}
	return nil
}

func printResults(w io.Writer, results []veille.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "Aucun résultat.")
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s\n%s\n", r.Title, r.Link)
		for _, occ := range r.Occurrences {
			fmt.Fprintf(w, "  ...%s...\n", occ.Context)
		}
		fmt.Fprintln(w)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(results []veille.Result) []veille.Result {
	if results == nil {
		return []veille.Result{}
	}
	return results
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, os.Stdout, flagLogLevel)
	if err != nil {
		return err
	}
	defer a.Close()

	// A feed outage at startup leaves an empty corpus; POST /api/ingest or
	// the veille_ingest tool can retry later.
	if n, err := a.svc.IngestURL(ctx, ""); err != nil {
		a.logger.Warn("initial ingestion failed", "feed", cfg.FeedURL, "error", err)
	} else {
		a.logger.Info("feed ingested", "feed", cfg.FeedURL, "publications", n)
	}

	pruneCtx, stopPrune := context.WithCancel(ctx)
	pruned := make(chan struct{})
	go func() {
		defer close(pruned)
		a.pruneEvents(pruneCtx, time.Hour)
	}()
	defer func() {
		stopPrune()
		<-pruned
	}()

	return serve(ctx, ":"+flagPort, newRouter(a), a.logger)
}
