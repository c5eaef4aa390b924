// Package config loads the vmr2tei TOML configuration file and turns it
// into the settings of the engine, the API server and the NTVMR client.
package config

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/FocuswithJustin/vmr2tei/core/catalog"
	"github.com/FocuswithJustin/vmr2tei/core/collate"
	"github.com/FocuswithJustin/vmr2tei/core/engine"
	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/internal/logging"
)

// File is the configuration file.
//
//	[collation]
//	policy = "greek"
//	primary_group = "primary"
//	mode = "collect"
//	workers = 4
//
//	[overrides]
//	"Acts.1.3/2" = "b"
//
//	[catalog]
//	path = "witnesses.db"
//
//	[groups]
//	primary = ["P74", "01", "03"]
type File struct {
	Collation Collation             `toml:"collation"`
	Overrides map[string]string     `toml:"overrides"`
	Output    Output                `toml:"output"`
	Catalog   CatalogRef            `toml:"catalog"`
	Groups    map[string][]string   `toml:"groups"`
	Byzantine map[string][]string   `toml:"byzantine"`
	Defects   []catalog.DefectEntry `toml:"defects"`
	Log       Log                   `toml:"log"`
	Server    Server                `toml:"server"`
	VMR       VMR                   `toml:"vmr"`
}

// Collation holds the collation policies.
type Collation struct {
	Policy               string   `toml:"policy"`
	Primary              []string `toml:"primary"`
	PrimaryGroup         string   `toml:"primary_group"`
	Split                string   `toml:"split"`
	FirstAppearance      *bool    `toml:"first_appearance"`
	Concise              bool     `toml:"concise"`
	SingularToSubreading bool     `toml:"singular_to_subreading"`
	Mode                 string   `toml:"mode"`
	Workers              int      `toml:"workers"`
}

// Output overrides document metadata.
type Output struct {
	Title    string `toml:"title"`
	Language string `toml:"language"`
}

// CatalogRef points at a witness catalog database.
type CatalogRef struct {
	Path string `toml:"path"`
}

// Log configures logging.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Server configures the API server.
type Server struct {
	Addr           string   `toml:"addr"`
	RateLimit      int      `toml:"rate_limit"`
	RateBurst      int      `toml:"rate_burst"`
	APIKey         string   `toml:"api_key"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
	OutputDir      string   `toml:"output_dir"`
	CacheEntries   int      `toml:"cache_entries"`
	JobTTL         string   `toml:"job_ttl"`
}

// VMR configures the NTVMR client.
type VMR struct {
	BaseURL      string `toml:"base_url"`
	Timeout      string `toml:"timeout"`
	CacheEntries int    `toml:"cache_entries"`
}

// Defaults.
const (
	DefaultAddr         = ":8080"
	DefaultMaxBodyBytes = 32 << 20
	DefaultCacheEntries = 64
	DefaultJobTTL       = time.Hour
	DefaultVMRBaseURL   = "https://ntvmr.uni-muenster.de/community/vmr/api/variant/apparatus/get/"
	DefaultVMRTimeout   = 60 * time.Second
)

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{}
}

// Load reads a configuration file. Unknown keys are rejected.
func Load(path string) (*File, error) {
	var f File
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, &cerrors.ParseError{Format: "TOML", Path: path, Message: err.Error(), Err: err}
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, err
	}
	return &f, f.Validate()
}

// Decode reads configuration from r. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	var f File
	meta, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, &cerrors.ParseError{Format: "TOML", Message: err.Error(), Err: err}
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, err
	}
	return &f, f.Validate()
}

func checkUndecoded(meta toml.MetaData) error {
	keys := meta.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Strings(names)
	return &cerrors.ValidationError{Field: names[0], Message: "unknown configuration key " + strings.Join(names, ", ")}
}

// Validate checks every named setting.
func (f *File) Validate() error {
	if _, err := collate.PolicyByName(f.Collation.Policy); err != nil {
		return &cerrors.ValidationError{Field: "collation.policy", Value: f.Collation.Policy, Message: err.Error()}
	}
	if _, err := collate.ParseSplitPolicy(f.Collation.Split); err != nil {
		return &cerrors.ValidationError{Field: "collation.split", Value: f.Collation.Split, Message: err.Error()}
	}
	if _, err := engine.ParseMode(f.Collation.Mode); err != nil {
		return &cerrors.ValidationError{Field: "collation.mode", Value: f.Collation.Mode, Message: err.Error()}
	}
	if _, err := collate.NormalizeOverrides(f.Overrides); err != nil {
		return err
	}
	if f.Collation.Workers < 0 {
		return cerrors.NewValidation("collation.workers", "must not be negative")
	}
	if _, err := logging.ParseLevel(f.Log.Level); err != nil {
		return &cerrors.ValidationError{Field: "log.level", Value: f.Log.Level, Message: err.Error()}
	}
	if _, err := logging.ParseFormat(f.Log.Format); err != nil {
		return &cerrors.ValidationError{Field: "log.format", Value: f.Log.Format, Message: err.Error()}
	}
	if _, err := duration(f.Server.JobTTL, DefaultJobTTL); err != nil {
		return &cerrors.ValidationError{Field: "server.job_ttl", Value: f.Server.JobTTL, Message: err.Error()}
	}
	if _, err := duration(f.VMR.Timeout, DefaultVMRTimeout); err != nil {
		return &cerrors.ValidationError{Field: "vmr.timeout", Value: f.VMR.Timeout, Message: err.Error()}
	}
	if f.Server.RateLimit < 0 || f.Server.RateBurst < 0 {
		return cerrors.NewValidation("server.rate_limit", "must not be negative")
	}
	if f.Collation.PrimaryGroup != "" && f.Catalog.Path == "" {
		if _, ok := f.Groups[f.Collation.PrimaryGroup]; !ok {
			return &cerrors.ValidationError{Field: "collation.primary_group", Value: f.Collation.PrimaryGroup,
				Message: "group is not defined"}
		}
	}
	return nil
}

func duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

// inline returns the catalog data written in the file itself.
func (f *File) inline() *catalog.Data {
	return &catalog.Data{Groups: f.Groups, Byzantine: f.Byzantine, Defects: f.Defects}
}

// LoadCatalog merges the catalog database, if one is configured, with the
// catalog data in the file. Groups and Byzantine lists in the file replace
// stored lists of the same name; defects are combined.
func (f *File) LoadCatalog(ctx context.Context) (*catalog.Snapshot, error) {
	inline, err := f.inline().Snapshot()
	if err != nil {
		return nil, err
	}
	if f.Catalog.Path == "" {
		return inline, nil
	}

	store, err := catalog.OpenReadOnly(f.Catalog.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	stored, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Merge(stored, inline), nil
}

// Engine converts the file into an engine configuration. snap may be nil.
func (f *File) Engine(snap *catalog.Snapshot) (engine.Config, error) {
	if err := f.Validate(); err != nil {
		return engine.Config{}, err
	}
	cfg := engine.DefaultConfig()

	c := f.Collation
	cfg.Equivalent, _ = collate.PolicyByName(c.Policy)
	cfg.Split, _ = collate.ParseSplitPolicy(c.Split)
	cfg.Mode, _ = engine.ParseMode(c.Mode)
	if c.FirstAppearance != nil {
		cfg.FirstAppearance = *c.FirstAppearance
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	cfg.Concise = c.Concise
	cfg.SingularToSubreading = c.SingularToSubreading
	cfg.Primary = c.Primary
	cfg.PrimaryGroup = c.PrimaryGroup
	cfg.Overrides = f.Overrides
	cfg.Title = f.Output.Title
	cfg.Language = f.Output.Language

	if snap != nil {
		cfg.Groups = snap.Groups
		cfg.Byzantine = snap.Byzantine
		cfg.Defects = snap
	}
	if cfg.PrimaryGroup != "" {
		if _, ok := cfg.Groups[cfg.PrimaryGroup]; !ok {
			return engine.Config{}, &cerrors.ValidationError{Field: "collation.primary_group", Value: cfg.PrimaryGroup,
				Message: "group is not defined in the catalog"}
		}
	}
	return cfg, nil
}

// JobTTLDuration returns how long finished API jobs are kept.
func (s Server) JobTTLDuration() time.Duration {
	d, err := duration(s.JobTTL, DefaultJobTTL)
	if err != nil {
		return DefaultJobTTL
	}
	return d
}

// TimeoutDuration returns the NTVMR request timeout.
func (v VMR) TimeoutDuration() time.Duration {
	d, err := duration(v.Timeout, DefaultVMRTimeout)
	if err != nil {
		return DefaultVMRTimeout
	}
	return d
}
