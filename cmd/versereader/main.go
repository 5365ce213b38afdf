// Command versereader serves and inspects scripture translations.
// It provides the reader API server and commands for listing books,
// reading references, searching and verifying a corpus.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/core/cache"
	"github.com/FocuswithJustin/versereader/core/corpus"
	"github.com/FocuswithJustin/versereader/core/sqlite"
	"github.com/FocuswithJustin/versereader/internal/api"
	"github.com/FocuswithJustin/versereader/internal/config"
	"github.com/FocuswithJustin/versereader/internal/library"
	"github.com/FocuswithJustin/versereader/internal/logging"
	"github.com/FocuswithJustin/versereader/internal/store"
)

const version = "0.1.0"

// stdout receives command output. Tests replace it.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for versereader.
var CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"Path to YAML config file" type:"path" default:"versereader.yaml"`
	CorpusDir string `name:"corpus-dir" help:"Read translations from this directory instead of the corpus URL" type:"path"`
	CorpusURL string `name:"corpus-url" help:"Base URL serving {version}.xml documents"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`

	Init    InitCmd    `cmd:"" help:"Write a config file with the built-in defaults"`
	Serve   ServeCmd   `cmd:"" help:"Start the reader API server"`
	Books   BooksCmd   `cmd:"" help:"List the books of a translation"`
	Read    ReadCmd    `cmd:"" help:"Print a chapter or verse range"`
	Search  SearchCmd  `cmd:"" help:"Search a translation for text"`
	Verify  VerifyCmd  `cmd:"" help:"Cross-check both verse extractors over a translation"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// app is the wired engine shared by all commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	cache  *cache.SizeCache[any]
	parser *corpus.Parser
	lib    *library.Manager
}

// newApp loads configuration, applies global flags and wires the engine.
func newApp() (*app, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.CorpusDir != "" {
		cfg.Corpus.Dir = CLI.CorpusDir
	}
	if CLI.CorpusURL != "" {
		cfg.Corpus.BaseURL = CLI.CorpusURL
		cfg.Corpus.Dir = ""
	}
	if CLI.LogLevel != "" {
		cfg.Log.Level = CLI.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	format, _ := logging.ParseFormat(cfg.Log.Format)
	logging.SetLogger(logging.NewLogger(os.Stderr, level, format))
	logger := logging.GetLogger()

	c := cache.New[any](cache.Config{
		MaxBytes: cfg.Cache.MaxBytes,
		TTL:      cfg.CacheTTL(),
		OnEvict: func(key string, size int64) {
			logging.CacheEvent("removed", key, size)
		},
	})

	var fetcher corpus.Fetcher
	if cfg.Corpus.Dir != "" {
		fetcher = &corpus.DirFetcher{Root: cfg.Corpus.Dir}
	} else {
		hf := corpus.NewHTTPFetcher(cfg.Corpus.BaseURL)
		hf.Timeout = cfg.FetchTimeout()
		fetcher = hf
	}

	parser := corpus.New(corpus.Config{
		Fetcher: fetcher,
		Cache:   c,
		Logger:  logger,
		OnLoad: func(version string, size int64, digest string) {
			logging.CorpusLoaded(version, size, digest)
		},
	})
	lib := library.New(parser, library.Options{TTL: cfg.LibraryTTL(), Logger: logger})

	return &app{cfg: cfg, logger: logger, cache: c, parser: parser, lib: lib}, nil
}

// InitCmd writes the default configuration, with global flags applied,
// to the --config path.
type InitCmd struct {
	Force bool `short:"f" help:"Overwrite an existing config file"`
}

func (c *InitCmd) Run() error {
	path := CLI.Config
	if path == "" {
		return fmt.Errorf("no config path given")
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	if CLI.CorpusDir != "" {
		cfg.Corpus.Dir = CLI.CorpusDir
	}
	if CLI.CorpusURL != "" {
		cfg.Corpus.BaseURL = CLI.CorpusURL
		cfg.Corpus.Dir = ""
	}
	if CLI.LogLevel != "" {
		cfg.Log.Level = CLI.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

// ServeCmd starts the reader API server.
type ServeCmd struct {
	Listen  string `help:"Listen address (overrides config)"`
	NoStore bool   `name:"no-store" help:"Disable positions and bookmarks"`
	Prewarm bool   `help:"Load configured translations before serving" default:"true" negatable:""`
}

func (c *ServeCmd) Run() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		a.cfg.Listen = c.Listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := api.Deps{
		Library:    a.lib,
		Digester:   a.parser,
		CacheStats: a.cache.Stats,
		Logger:     a.logger,
	}
	if !c.NoStore && a.cfg.Store.Path != "" {
		st, err := store.Open(ctx, a.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()
		deps.Store = st
		a.logger.Info("store opened",
			"path", a.cfg.Store.Path,
			"driver", sqlite.DriverName(),
			"cgo", sqlite.IsCGO())
	}

	srv := api.New(api.Config{
		Addr:           a.cfg.Listen,
		Versions:       a.cfg.Corpus.Versions,
		AllowedOrigins: a.cfg.CORS.AllowedOrigins,
		BuildVersion:   version,
	}, deps)

	if c.Prewarm {
		if err := srv.Prewarm(ctx); err != nil {
			a.logger.Warn("prewarm incomplete, serving anyway", "error", err)
		}
	}
	return srv.ListenAndServe(ctx)
}

// BooksCmd lists the books of a translation.
type BooksCmd struct {
	Version string `arg:"" help:"Translation code (e.g., acf)"`
}

func (c *BooksCmd) Run() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	data, err := a.lib.GetBibleData(context.Background(), c.Version)
	if err != nil {
		return err
	}

	width := 0
	for _, b := range data.Books {
		width = max(width, len(b.Abbrev))
	}
	for _, b := range data.Books {
		fmt.Fprintf(stdout, "%-*s  %-24s %3d\n", width, b.Abbrev, b.Name, b.Chapters)
	}
	fmt.Fprintf(stdout, "\n%d books\n", len(data.Books))
	return nil
}

// ReadCmd prints a chapter or verse range.
type ReadCmd struct {
	Version string   `arg:"" help:"Translation code (e.g., acf)"`
	Ref     []string `arg:"" help:"Reference such as 'jo 3:16' or '1co 13:4-7'"`
}

func (c *ReadCmd) Run() error {
	ref, err := bible.ParseRef(strings.Join(c.Ref, " "))
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	ctx := context.Background()
	data, err := a.lib.GetBibleData(ctx, c.Version)
	if err != nil {
		return err
	}
	pos := ref.Position()
	book, ok := data.Book(pos.Book)
	if !ok {
		return fmt.Errorf("book %q not in %s", pos.Book, c.Version)
	}
	ch, err := a.lib.GetChapter(ctx, c.Version, pos.Book, pos.Chapter)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s %d\n\n", book.Name, ch.Number)
	printed := 0
	for _, v := range ch.Verses {
		if !ref.Contains(v.Number) {
			continue
		}
		fmt.Fprintf(stdout, "%3d  %s\n", v.Number, v.Text)
		printed++
	}
	if printed == 0 {
		return fmt.Errorf("no verses match %s", ref)
	}
	return nil
}

// SearchCmd searches a translation for text.
type SearchCmd struct {
	Version string   `arg:"" help:"Translation code (e.g., acf)"`
	Query   []string `arg:"" help:"Text to search for"`
	Limit   int      `short:"n" help:"Maximum number of results" default:"20"`
}

func (c *SearchCmd) Run() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	query := strings.Join(c.Query, " ")
	results := a.lib.SearchVerses(context.Background(), c.Version, query, c.Limit)
	for _, r := range results {
		fmt.Fprintf(stdout, "%s %d:%d  %s\n", r.BookAbbrev, r.Chapter, r.Verse, r.Text)
	}
	fmt.Fprintf(stdout, "\n%d results for %q\n", len(results), query)
	return nil
}

// VerifyCmd runs the regex and tree extractors over every chapter.
type VerifyCmd struct {
	Version string `arg:"" help:"Translation code (e.g., acf)"`
}

func (c *VerifyCmd) Run() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	report, err := a.parser.Verify(context.Background(), c.Version, corpus.TreeExtractor{})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Translation: %s\n", report.Version)
	fmt.Fprintf(stdout, "  BLAKE3:   %s\n", report.Digest)
	fmt.Fprintf(stdout, "  Books:    %d\n", report.Books)
	fmt.Fprintf(stdout, "  Chapters: %d\n", report.Chapters)
	fmt.Fprintf(stdout, "  Verses:   %d\n", report.Verses)
	fmt.Fprintf(stdout, "  Cached:   %s\n", humanize.IBytes(uint64(a.cache.Size())))

	if report.OK() {
		fmt.Fprintln(stdout, "OK: extractors agree on every chapter")
		return nil
	}
	for _, m := range report.Mismatches {
		if m.Chapter > 0 {
			fmt.Fprintf(stdout, "  MISMATCH %s %d: %s\n", m.Book, m.Chapter, m.Reason)
		} else {
			fmt.Fprintf(stdout, "  MISMATCH %s: %s\n", m.Book, m.Reason)
		}
	}
	return fmt.Errorf("%d mismatches in %s", len(report.Mismatches), report.Version)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "versereader version %s\n", version)
	fmt.Fprintf(stdout, "  sqlite driver: %s (%s)\n", sqlite.DriverName(), sqlite.DriverType())
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("versereader"),
		kong.Description("Verse Reader - scripture corpus server and tools"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
