// Package config loads the synq client configuration.
//
// Configuration is written in CUE and unified with the embedded #Config
// schema, which supplies defaults and rejects unknown fields:
//
//	api_url:  "https://habitica.com"
//	debounce: "5s"
//	window:   "coalesce"
//	storage: {driver: "badger", path: "/var/lib/synq"}
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource []byte

// Config is the decoded configuration.
type Config struct {
	APIURL      string
	BuildTag    string
	Debounce    time.Duration
	Window      string
	Mobile      bool
	HTTPTimeout time.Duration
	Storage     Storage
}

// Storage selects the persistence backend.
type Storage struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	Codec  string `json:"codec"`
}

// document mirrors #Config field for field.
type document struct {
	APIURL      string  `json:"api_url"`
	BuildTag    string  `json:"build_tag"`
	Debounce    string  `json:"debounce"`
	Window      string  `json:"window"`
	Mobile      bool    `json:"mobile"`
	HTTPTimeout string  `json:"http_timeout"`
	Storage     Storage `json:"storage"`
}

// Error is a configuration error with its CUE source position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Defaults returns the configuration an empty file produces.
func Defaults() *Config {
	c, err := Parse(nil, "defaults.cue")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	return c
}

// Load reads a CUE file, or every .cue file of a directory's package, and
// unifies it with the schema.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return Parse(data, path)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &Error{Field: "cue", Message: "no CUE instances loaded from " + path}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	value := ctx.BuildInstance(instances[0])
	return decode(ctx, value)
}

// Parse unifies CUE source with the schema. filename only labels errors.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	return decode(ctx, value)
}

func decode(ctx *cue.Context, value cue.Value) (*Config, error) {
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var doc document
	if err := unified.Decode(&doc); err != nil {
		return nil, formatCUEError(err)
	}
	return fromDocument(doc)
}

func fromDocument(doc document) (*Config, error) {
	debounce, err := time.ParseDuration(doc.Debounce)
	if err != nil {
		return nil, &Error{Field: "debounce", Message: err.Error()}
	}
	timeout, err := time.ParseDuration(doc.HTTPTimeout)
	if err != nil {
		return nil, &Error{Field: "http_timeout", Message: err.Error()}
	}

	c := &Config{
		APIURL:      doc.APIURL,
		BuildTag:    doc.BuildTag,
		Debounce:    debounce,
		Window:      doc.Window,
		Mobile:      doc.Mobile,
		HTTPTimeout: timeout,
		Storage:     doc.Storage,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the constraints CUE cannot express. It is called by
// Load and Parse, and again by the CLI after flag overrides.
func (c *Config) Validate() error {
	if c.Debounce <= 0 {
		return &Error{Field: "debounce", Message: "must be positive"}
	}
	if c.HTTPTimeout <= 0 {
		return &Error{Field: "http_timeout", Message: "must be positive"}
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &Error{Field: "api_url", Message: fmt.Sprintf("not an absolute URL: %q", c.APIURL)}
	}
	if c.Storage.Driver != "memory" && c.Storage.Path == "" {
		return &Error{Field: "storage.path", Message: "required for driver " + c.Storage.Driver}
	}
	return nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	var pos token.Pos
	if positions := errors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	msg, args := first.Msg()
	return &Error{Field: field, Message: fmt.Sprintf(msg, args...), Pos: pos}
}
