package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscout/internal/api"
	"leadscout/internal/browser"
	"leadscout/internal/config"
	"leadscout/internal/lead"
	"leadscout/internal/logging"
	"leadscout/internal/pipeline"
	"leadscout/internal/store"
)

var (
	scrapeRole     string
	scrapeLocation string
	scrapePages    int
	scrapeEnrich   bool
	exportOut      string
	configForce    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape and print the result as JSON",
	RunE:  runScrape,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every stored lead as CSV",
	Long: `Writes all stored leads, newest first, as CSV. With --out pointing at a
directory the file is named leads_YYYY-MM-DD.csv (Adelaide date).`,
	RunE: runExport,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration, open the store and probe /health",
	RunE:  runCheck,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration file commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration as YAML",
	Long: `Writes the built-in defaults to path (default leadscout.yaml). Secrets
from the environment are not written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var browserCmd = &cobra.Command{
	Use:   "browser",
	Short: "Headless browser commands",
}

var browserInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download Chromium if no browser binary is available",
	RunE:  runBrowserInstall,
}

func init() {
	def := pipeline.DefaultScrapeRequest()
	scrapeCmd.Flags().StringVar(&scrapeRole, "role", def.Role, "Job role to search for")
	scrapeCmd.Flags().StringVar(&scrapeLocation, "location", def.Location, "Search location")
	scrapeCmd.Flags().IntVar(&scrapePages, "pages", def.Pages, "Number of result pages")
	scrapeCmd.Flags().BoolVar(&scrapeEnrich, "enrich", false, "Print enriched jobs without storing them")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file or directory (default: stdout)")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.Background()) }()

	return scrapeAndPrint(ctx, a.pipeline, cmd.OutOrStdout(), pipeline.ScrapeRequest{
		Role:       scrapeRole,
		Location:   scrapeLocation,
		Pages:      scrapePages,
		EnrichOnly: scrapeEnrich,
	})
}

// scrapeRunner is the part of pipeline.Service the scrape command uses.
type scrapeRunner interface {
	Scrape(ctx context.Context, req pipeline.ScrapeRequest) (pipeline.ScrapeResult, error)
}

func scrapeAndPrint(ctx context.Context, p scrapeRunner, w io.Writer, req pipeline.ScrapeRequest) error {
	res, err := p.Scrape(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runExport(cmd *cobra.Command, args []string) error {
	if !cfg.StoreConfigured() {
		return fmt.Errorf("lead store: %w", lead.ErrNotConfigured)
	}
	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return fmt.Errorf("open lead store: %w", err)
	}
	defer st.Close()

	n, err := exportLeads(cmd.Context(), st, cmd.OutOrStdout(), exportOut, time.Now())
	if err != nil {
		return err
	}
	logging.For(logger, logging.CategoryStore).Info("leads exported", zap.Int("count", n))
	return nil
}

// exportLeads writes every lead in st to out, or to stdout when out is
// empty. A directory out gets the dated export filename.
func exportLeads(ctx context.Context, st store.LeadStore, stdout io.Writer, out string, now time.Time) (int, error) {
	leads, err := st.All(ctx)
	if err != nil {
		return 0, err
	}
	if out == "" {
		return len(leads), lead.WriteCSV(stdout, leads)
	}

	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, lead.ExportFilename(now))
	}
	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	if err := lead.WriteCSV(f, leads); err != nil {
		f.Close()
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(leads), f.Close()
}

func runCheck(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "config:   ok (listen %s)\n", cfg.ListenAddr())

	provider, _ := cfg.LLM.GetActiveProvider()
	if provider == "" {
		provider = "none (heuristic enrichment)"
	}
	fmt.Fprintf(w, "llm:      %s\n", provider)

	var st store.LeadStore
	if cfg.StoreConfigured() {
		s, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("open lead store: %w", err)
		}
		defer s.Close()
		if err := s.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("ping lead store: %w", err)
		}
		st = s
		fmt.Fprintf(w, "store:    ok (%s)\n", s.Path())
	} else {
		fmt.Fprintln(w, "store:    not configured")
	}

	status, err := probeHealth(st)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "health:   %d\n", status)
	for _, r := range api.Routes() {
		fmt.Fprintf(w, "route:    %s\n", r.Pattern())
	}
	return nil
}

// probeHealth serves GET /health from an in-process router.
func probeHealth(st store.LeadStore) (int, error) {
	router := api.NewRouter(api.NewHandlers(nil, st), cfg.Server.CORSOrigins, logger)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		return 0, fmt.Errorf("probe /health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, errors.New("health check failed")
	}
	return resp.StatusCode, nil
}

func runBrowserInstall(cmd *cobra.Command, args []string) error {
	if cfg.Browser.Disabled {
		return errors.New("browser fallback is disabled (BROWSER_DISABLED)")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	bin, err := browser.NewManager(browserConfig(cfg), logger).Install(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), bin)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "leadscout.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if err := writeDefaultConfig(path, configForce); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// writeDefaultConfig saves config.DefaultConfig to path. An existing file
// is kept unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return config.DefaultConfig().Save(path)
}
