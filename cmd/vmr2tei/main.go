// Command vmr2tei converts NTVMR variation-unit records into a TEI
// critical apparatus. It also checks record files, keeps golden digests of
// converted documents, manages the witness catalog and serves the REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/vmr2tei/core/cas"
	"github.com/FocuswithJustin/vmr2tei/core/catalog"
	"github.com/FocuswithJustin/vmr2tei/core/engine"
	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/record"
	"github.com/FocuswithJustin/vmr2tei/core/sqlite"
	"github.com/FocuswithJustin/vmr2tei/internal/api"
	"github.com/FocuswithJustin/vmr2tei/internal/archive"
	"github.com/FocuswithJustin/vmr2tei/internal/config"
	"github.com/FocuswithJustin/vmr2tei/internal/logging"
	"github.com/FocuswithJustin/vmr2tei/internal/vmr"
)

var version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Globals `embed:""`

	Convert ConvertCmd   `cmd:"" help:"Convert unit records to a TEI apparatus"`
	Check   CheckCmd     `cmd:"" help:"Parse and collate record files without writing output"`
	Inspect InspectCmd   `cmd:"" help:"Show the manifest and failures of a result bundle"`
	Golden  GoldenGroup  `cmd:"" help:"Golden digest operations"`
	Catalog CatalogGroup `cmd:"" help:"Witness catalog operations"`
	Serve   ServeCmd     `cmd:"" help:"Start the REST API server"`
	Version VersionCmd   `cmd:"" help:"Print version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	Config    string `short:"c" type:"path" env:"VMR2TEI_CONFIG" help:"Configuration file (TOML)"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (text, json)"`

	Stdout io.Writer `kong:"-"`
}

// load reads the configuration file, or the defaults when none is named,
// and sets up logging.
func (g *Globals) load() (*config.File, error) {
	f := config.Default()
	if g.Config != "" {
		var err error
		if f, err = config.Load(g.Config); err != nil {
			return nil, err
		}
	}
	if g.LogLevel != "" {
		f.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		f.Log.Format = g.LogFormat
	}
	level, err := logging.ParseLevel(f.Log.Level)
	if err != nil {
		return nil, &cerrors.ValidationError{Field: "log-level", Value: f.Log.Level, Message: err.Error()}
	}
	format, err := logging.ParseFormat(f.Log.Format)
	if err != nil {
		return nil, &cerrors.ValidationError{Field: "log-format", Value: f.Log.Format, Message: err.Error()}
	}
	logging.InitLogger(level, format)
	return f, nil
}

func (g *Globals) out() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// CollationFlags override the [collation] settings of the configuration.
type CollationFlags struct {
	Policy       string            `help:"Orthographic policy (strict, diacritics, greek)"`
	Split        string            `help:"Ambiguous attestation policy (attach-all, first-target)"`
	Mode         string            `help:"Error mode (strict, collect)"`
	Concise      bool              `help:"Fold orthographic variants into their parent reading"`
	Subreadings  bool              `help:"Mark singular untyped readings as subreadings"`
	StrictTies   bool              `name:"strict-ties" help:"Fail on lemma ties instead of taking the first reading"`
	Workers      int               `help:"Units parsed and collated in parallel"`
	Primary      []string          `help:"Sigla that break lemma ties"`
	PrimaryGroup string            `name:"primary-group" help:"Witness group whose members break lemma ties"`
	Override     map[string]string `help:"Lemma override as ANCHOR=LABEL"`
	Title        string            `help:"Document title"`
	Catalog      string            `type:"path" help:"Witness catalog database"`
}

func (c *CollationFlags) apply(f *config.File) {
	col := &f.Collation
	if c.Policy != "" {
		col.Policy = c.Policy
	}
	if c.Split != "" {
		col.Split = c.Split
	}
	if c.Mode != "" {
		col.Mode = c.Mode
	}
	if c.Concise {
		col.Concise = true
	}
	if c.Subreadings {
		col.SingularToSubreading = true
	}
	if c.StrictTies {
		first := false
		col.FirstAppearance = &first
	}
	if c.Workers > 0 {
		col.Workers = c.Workers
	}
	if len(c.Primary) > 0 {
		col.Primary = c.Primary
	}
	if c.PrimaryGroup != "" {
		col.PrimaryGroup = c.PrimaryGroup
	}
	if len(c.Override) > 0 {
		if f.Overrides == nil {
			f.Overrides = make(map[string]string, len(c.Override))
		}
		for anchor, choice := range c.Override {
			f.Overrides[anchor] = choice
		}
	}
	if c.Title != "" {
		f.Output.Title = c.Title
	}
	if c.Catalog != "" {
		f.Catalog.Path = c.Catalog
	}
}

// engine applies the flags to f and builds the engine configuration.
func (c *CollationFlags) engine(ctx context.Context, f *config.File) (engine.Config, error) {
	c.apply(f)
	snap, err := f.LoadCatalog(ctx)
	if err != nil {
		return engine.Config{}, err
	}
	return f.Engine(snap)
}

// readBatch reads and decodes a record file. Compressed files and record
// bundles are unpacked first.
func readBatch(path string) (*record.Batch, error) {
	data, err := archive.ReadFile(path)
	if err != nil {
		return nil, cerrors.NewIO("read records", path, err)
	}
	batch, err := engine.DecodeRecords(data, engine.FormatOf(archive.TrimCompression(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return batch, nil
}

func vmrClient(v config.VMR) *vmr.Client {
	opts := []vmr.Option{vmr.WithTimeout(v.TimeoutDuration())}
	if v.BaseURL != "" {
		opts = append(opts, vmr.WithBaseURL(v.BaseURL))
	}
	if v.CacheEntries > 0 {
		opts = append(opts, vmr.WithCache(v.CacheEntries))
	}
	return vmr.NewClient(opts...)
}

// convert runs one conversion and logs it under a fresh run ID. Failed units
// are logged even when the run as a whole fails.
func convert(ctx context.Context, cfg engine.Config, batch *record.Batch, source string) (*engine.Result, error) {
	ctx = logging.WithRunID(ctx, logging.NewRunID())
	logging.RunStarted(ctx, source, len(batch.Records), "mode", cfg.Mode.String())
	start := time.Now()

	res, err := engine.New(cfg).ConvertBatch(ctx, batch)
	if res != nil {
		for _, ue := range res.Errors {
			logging.UnitFailed(ctx, ue.Index, ue.Anchor, ue.Err)
		}
	}
	if err != nil {
		var ue *cerrors.UnitError
		if res == nil && errors.As(err, &ue) {
			logging.UnitFailed(ctx, ue.Index, ue.Anchor, ue.Err)
		}
		return res, err
	}
	logging.RunFinished(ctx, res.Units, len(res.Errors), time.Since(start))
	return res, nil
}

// ConvertCmd converts one record file or NTVMR index.
type ConvertCmd struct {
	CollationFlags `embed:""`

	Input string `arg:"" optional:"" type:"existingfile" help:"Unit records (.json or .xml, optionally .gz or .xz, or a .tar.xz bundle)"`
	Index string `help:"Fetch the records of an NTVMR index such as Acts.1.1-5"`
	Out   string `short:"o" default:"-" help:"Output file (.xml, .xml.gz, .xml.xz or a .tar.xz result bundle); - writes to stdout"`
}

func (c *ConvertCmd) Run(ctx context.Context, g *Globals) error {
	f, err := g.load()
	if err != nil {
		return err
	}
	cfg, err := c.engine(ctx, f)
	if err != nil {
		return err
	}
	batch, source, err := c.batch(ctx, f)
	if err != nil {
		return err
	}

	res, err := convert(ctx, cfg, batch, source)
	if err != nil {
		return err
	}
	if c.Out == "" || c.Out == "-" {
		_, err := g.out().Write(res.Output)
		return err
	}
	if err := c.write(res, source); err != nil {
		return err
	}
	fmt.Fprintf(g.out(), "Wrote %s: %d units, %d witnesses, %d failed\n",
		c.Out, res.Units, len(res.Document.Witnesses), len(res.Errors))
	return nil
}

func (c *ConvertCmd) batch(ctx context.Context, f *config.File) (*record.Batch, string, error) {
	switch {
	case c.Input != "" && c.Index != "":
		return nil, "", cerrors.NewValidation("index", "give either an input file or --index, not both")
	case c.Index != "":
		idx, err := vmr.ParseIndex(c.Index)
		if err != nil {
			return nil, "", err
		}
		batch, err := vmrClient(f.VMR).Records(ctx, c.Index)
		if err != nil {
			return nil, "", err
		}
		return batch, "ntvmr:" + idx.String(), nil
	case c.Input != "":
		batch, err := readBatch(c.Input)
		return batch, c.Input, err
	}
	return nil, "", cerrors.NewValidation("input", "an input file or --index is required")
}

func (c *ConvertCmd) write(res *engine.Result, source string) error {
	if archive.IsBundle(c.Out) {
		return archive.WriteResultBundle(c.Out, &archive.Bundle{
			Manifest: archive.Manifest{
				Title:     res.Document.Title,
				Source:    source,
				Units:     res.Units,
				Witnesses: len(res.Document.Witnesses),
			},
			Document: res.Output,
			Failures: archive.Failures(res.Errors),
		})
	}
	return archive.WriteFile(c.Out, res.Output)
}

// CheckCmd parses and collates record files and reports every failing unit.
type CheckCmd struct {
	CollationFlags `embed:""`

	Inputs []string `arg:"" type:"existingfile" help:"Unit record files"`
}

func (c *CheckCmd) Run(ctx context.Context, g *Globals) error {
	f, err := g.load()
	if err != nil {
		return err
	}
	cfg, err := c.engine(ctx, f)
	if err != nil {
		return err
	}
	cfg.Mode = engine.Collect
	eng := engine.New(cfg)

	w := g.out()
	failed := 0
	for _, path := range c.Inputs {
		batch, err := readBatch(path)
		if err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		units, report, err := eng.Check(ctx, batch.Records)
		if err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		for _, ue := range report {
			fmt.Fprintf(w, "FAIL %s: %v\n", path, ue)
		}
		// Units that collate may still overlap each other.
		if len(units) > 0 {
			if _, err := eng.ConvertBatch(ctx, batch); err != nil {
				fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
				failed++
				continue
			}
		}
		if len(report) > 0 {
			failed++
			continue
		}
		fmt.Fprintf(w, "ok   %s: %d units\n", path, len(units))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(c.Inputs))
	}
	return nil
}

// InspectCmd prints a result bundle's manifest and unit report.
type InspectCmd struct {
	Bundle string `arg:"" type:"existingfile" help:"Result bundle (.tar.xz or .tar.gz)"`
}

func (c *InspectCmd) Run(g *Globals) error {
	b, err := archive.ReadResultBundle(c.Bundle)
	if err != nil {
		return err
	}
	w := g.out()
	m := b.Manifest
	fmt.Fprintf(w, "Title:     %s\n", m.Title)
	if m.Source != "" {
		fmt.Fprintf(w, "Source:    %s\n", m.Source)
	}
	fmt.Fprintf(w, "BLAKE3:    %s\n", m.Digest)
	fmt.Fprintf(w, "Size:      %d bytes\n", m.Size)
	fmt.Fprintf(w, "Units:     %d\n", m.Units)
	fmt.Fprintf(w, "Witnesses: %d\n", m.Witnesses)
	fmt.Fprintf(w, "Failed:    %d\n", m.Failed)
	for _, f := range b.Failures {
		fmt.Fprintf(w, "  unit %d %s: %s\n", f.Index, f.Anchor, f.Error)
	}
	return nil
}

// GoldenGroup contains golden digest operations.
type GoldenGroup struct {
	Save  GoldenSaveCmd  `cmd:"" help:"Record the digest of each converted input"`
	Check GoldenCheckCmd `cmd:"" help:"Check converted inputs against their recorded digests"`
}

// GoldenSaveCmd converts inputs and records their output digests.
type GoldenSaveCmd struct {
	CollationFlags `embed:""`

	Golden string   `default:"golden.json" type:"path" help:"Golden digest file"`
	Inputs []string `arg:"" type:"existingfile" help:"Unit record files"`
}

func (c *GoldenSaveCmd) Run(ctx context.Context, g *Globals) error {
	f, err := g.load()
	if err != nil {
		return err
	}
	cfg, err := c.engine(ctx, f)
	if err != nil {
		return err
	}
	golden, err := cas.LoadGolden(c.Golden)
	if err != nil {
		return err
	}
	for _, path := range c.Inputs {
		batch, err := readBatch(path)
		if err != nil {
			return err
		}
		res, err := convert(ctx, cfg, batch, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		e := golden.Record(filepath.Base(path), res.Output, res.Units)
		fmt.Fprintf(g.out(), "%s  %s\n", e.Digest, filepath.Base(path))
	}
	return golden.Save(c.Golden)
}

// GoldenCheckCmd converts inputs and compares their digests.
type GoldenCheckCmd struct {
	CollationFlags `embed:""`

	Golden string   `default:"golden.json" type:"path" help:"Golden digest file"`
	Inputs []string `arg:"" type:"existingfile" help:"Unit record files"`
}

func (c *GoldenCheckCmd) Run(ctx context.Context, g *Globals) error {
	f, err := g.load()
	if err != nil {
		return err
	}
	cfg, err := c.engine(ctx, f)
	if err != nil {
		return err
	}
	golden, err := cas.LoadGolden(c.Golden)
	if err != nil {
		return err
	}

	w := g.out()
	failed := 0
	for _, path := range c.Inputs {
		name := filepath.Base(path)
		batch, err := readBatch(path)
		if err != nil {
			return err
		}
		res, err := convert(ctx, cfg, batch, path)
		if err == nil {
			err = golden.Check(name, res.Output)
		}
		if err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", name, err)
			failed++
			continue
		}
		fmt.Fprintf(w, "ok   %s\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs do not match %s", failed, len(c.Inputs), c.Golden)
	}
	return nil
}

// CatalogGroup contains witness catalog operations.
type CatalogGroup struct {
	Import CatalogImportCmd `cmd:"" help:"Import groups, Byzantine lists and defects from TOML files"`
	Show   CatalogShowCmd   `cmd:"" help:"List the contents of the catalog"`
}

// CatalogFlags name the catalog database.
type CatalogFlags struct {
	DB string `type:"path" help:"Catalog database (default: catalog.path from the configuration)"`
}

func (c CatalogFlags) path(f *config.File) (string, error) {
	if c.DB != "" {
		return c.DB, nil
	}
	if f.Catalog.Path != "" {
		return f.Catalog.Path, nil
	}
	return "", cerrors.NewValidation("db", "no catalog database given")
}

// CatalogImportCmd merges catalog files into the database.
type CatalogImportCmd struct {
	CatalogFlags `embed:""`

	Files []string `arg:"" type:"existingfile" help:"Catalog files (TOML)"`
}

func (c *CatalogImportCmd) Run(ctx context.Context, g *Globals) error {
	f, err := g.load()
	if err != nil {
		return err
	}
	path, err := c.path(f)
	if err != nil {
		return err
	}
	store, err := catalog.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, file := range c.Files {
		data, err := catalog.DecodeFile(file)
		if err != nil {
			return err
		}
		stats, err := store.Import(ctx, data)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		fmt.Fprintf(g.out(), "Imported %s: %d groups, %d Byzantine lists, %d defects\n",
			file, stats.Groups, stats.Byzantine, stats.Defects)
	}
	return nil
}

// CatalogShowCmd lists the catalog.
type CatalogShowCmd struct {
	CatalogFlags `embed:""`
}

func (c *CatalogShowCmd) Run(ctx context.Context, g *Globals) error {
	f, err := g.load()
	if err != nil {
		return err
	}
	path, err := c.path(f)
	if err != nil {
		return err
	}
	store, err := catalog.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer store.Close()
	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}

	w := g.out()
	for _, name := range sortedKeys(snap.Groups) {
		fmt.Fprintf(w, "group %s: %s\n", name, strings.Join(snap.Groups[name], " "))
	}
	for _, book := range sortedKeys(snap.Byzantine) {
		fmt.Fprintf(w, "byzantine %s: %s\n", book, strings.Join(snap.Byzantine[book], " "))
	}
	for _, d := range snap.Defects {
		fmt.Fprintf(w, "defect %s: %s.%d.%d-%d.%d\n", d.Siglum, d.Book,
			d.From.Chapter, d.From.Verse, d.To.Chapter, d.To.Verse)
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ServeCmd starts the REST API server.
type ServeCmd struct {
	CollationFlags `embed:""`

	Addr           string   `help:"Listen address (default :8080)"`
	APIKey         string   `name:"api-key" env:"VMR2TEI_API_KEY" help:"Require this key on API requests"`
	RateLimit      int      `name:"rate-limit" help:"Requests per minute per client (0 disables)"`
	OutputDir      string   `name:"output-dir" type:"path" help:"Directory for the content-addressed document store"`
	AllowedOrigins []string `name:"allowed-origin" help:"Origins allowed for CORS and WebSocket connections"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	f, err := g.load()
	if err != nil {
		return err
	}
	cfg, err := c.engine(ctx, f)
	if err != nil {
		return err
	}

	s := f.Server
	if c.Addr != "" {
		s.Addr = c.Addr
	}
	if c.APIKey != "" {
		s.APIKey = c.APIKey
	}
	if c.RateLimit > 0 {
		s.RateLimit = c.RateLimit
	}
	if c.OutputDir != "" {
		s.OutputDir = c.OutputDir
	}
	if len(c.AllowedOrigins) > 0 {
		s.AllowedOrigins = c.AllowedOrigins
	}

	api.Version = version
	server, err := api.NewServer(serverConfig(s, cfg, vmrClient(f.VMR)))
	if err != nil {
		return err
	}
	return server.Start(ctx)
}

func serverConfig(s config.Server, cfg engine.Config, client *vmr.Client) api.Config {
	return api.Config{
		Addr:              s.Addr,
		RateLimitRequests: s.RateLimit,
		RateLimitBurst:    s.RateBurst,
		Auth:              api.AuthConfig{Enabled: s.APIKey != "", APIKey: s.APIKey},
		AllowedOrigins:    s.AllowedOrigins,
		MaxBodyBytes:      s.MaxBodyBytes,
		OutputDir:         s.OutputDir,
		CacheEntries:      s.CacheEntries,
		JobTTL:            s.JobTTLDuration(),
		Engine:            cfg,
		VMR:               client,
	}
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.out(), "vmr2tei version %s\n", version)
	fmt.Fprintf(g.out(), "sqlite driver %s\n", sqlite.Current())
	return nil
}

func options(ctx context.Context) []kong.Option {
	return []kong.Option{
		kong.Name("vmr2tei"),
		kong.Description("Convert NTVMR variation units into a TEI critical apparatus"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.BindTo(ctx, (*context.Context)(nil)),
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli := CLI{Globals: Globals{Stdout: os.Stdout}}
	kctx := kong.Parse(&cli, options(ctx)...)
	err := kctx.Run(&cli.Globals)
	stop()
	kctx.FatalIfErrorf(err)
}
