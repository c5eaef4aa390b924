package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/FocuswithJustin/vmr2tei/core/cas"
	"github.com/FocuswithJustin/vmr2tei/core/collate"
	"github.com/FocuswithJustin/vmr2tei/core/engine"
	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/record"
	"github.com/FocuswithJustin/vmr2tei/internal/archive"
	"github.com/FocuswithJustin/vmr2tei/internal/logging"
	"github.com/FocuswithJustin/vmr2tei/internal/vmr"
)

// ConvertRequest is the body of a conversion request. Exactly one of
// Records, XML and Index names the input.
type ConvertRequest struct {
	// Records holds unit records as a JSON array or an object with a
	// "units" array.
	Records json.RawMessage `json:"records,omitempty"`
	// XML holds an NTVMR collation export.
	XML string `json:"xml,omitempty"`
	// Index is an NTVMR content index to fetch, such as "Acts.1".
	Index   string  `json:"index,omitempty"`
	Options Options `json:"options"`
}

// Options override the server's collation settings for one request.
type Options struct {
	Policy               string            `json:"policy,omitempty"`
	Split                string            `json:"split,omitempty"`
	Mode                 string            `json:"mode,omitempty"`
	Concise              *bool             `json:"concise,omitempty"`
	SingularToSubreading *bool             `json:"singular_to_subreading,omitempty"`
	FirstAppearance      *bool             `json:"first_appearance,omitempty"`
	Primary              []string          `json:"primary,omitempty"`
	PrimaryGroup         string            `json:"primary_group,omitempty"`
	Overrides            map[string]string `json:"overrides,omitempty"`
	Title                string            `json:"title,omitempty"`
}

// ConvertResult describes a converted document.
type ConvertResult struct {
	Digest    string            `json:"blake3"`
	Title     string            `json:"title"`
	Units     int               `json:"units"`
	Witnesses int               `json:"witnesses"`
	Failures  []archive.Failure `json:"failures,omitempty"`
	Duration  string            `json:"duration"`
	Document  string            `json:"document,omitempty"`
}

func (r *ConvertRequest) validate(canFetch bool) error {
	sources := 0
	for _, set := range []bool{len(r.Records) > 0, r.XML != "", r.Index != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return cerrors.NewValidation("request", "exactly one of records, xml and index is required")
	}
	if r.Index != "" {
		if !canFetch {
			return cerrors.NewValidation("index", "fetching from the NTVMR is disabled")
		}
		if _, err := vmr.ParseIndex(r.Index); err != nil {
			return err
		}
	}
	return nil
}

// apply layers the options over base.
func (o Options) apply(base engine.Config) (engine.Config, error) {
	cfg := base
	if o.Policy != "" {
		p, err := collate.PolicyByName(o.Policy)
		if err != nil {
			return cfg, &cerrors.ValidationError{Field: "options.policy", Value: o.Policy, Message: err.Error()}
		}
		cfg.Equivalent = p
	}
	if o.Split != "" {
		p, err := collate.ParseSplitPolicy(o.Split)
		if err != nil {
			return cfg, &cerrors.ValidationError{Field: "options.split", Value: o.Split, Message: err.Error()}
		}
		cfg.Split = p
	}
	if o.Mode != "" {
		m, err := engine.ParseMode(o.Mode)
		if err != nil {
			return cfg, &cerrors.ValidationError{Field: "options.mode", Value: o.Mode, Message: "want strict or collect"}
		}
		cfg.Mode = m
	}
	if o.Concise != nil {
		cfg.Concise = *o.Concise
	}
	if o.SingularToSubreading != nil {
		cfg.SingularToSubreading = *o.SingularToSubreading
	}
	if o.FirstAppearance != nil {
		cfg.FirstAppearance = *o.FirstAppearance
	}
	if len(o.Primary) > 0 {
		cfg.Primary = o.Primary
	}
	if o.PrimaryGroup != "" {
		if _, ok := cfg.Groups[o.PrimaryGroup]; !ok {
			return cfg, &cerrors.ValidationError{Field: "options.primary_group", Value: o.PrimaryGroup,
				Message: "group is not defined"}
		}
		cfg.PrimaryGroup = o.PrimaryGroup
	}
	if len(o.Overrides) > 0 {
		merged := make(map[string]string, len(base.Overrides)+len(o.Overrides))
		for k, v := range base.Overrides {
			merged[k] = v
		}
		for k, v := range o.Overrides {
			merged[k] = v
		}
		cfg.Overrides = merged
	}
	if o.Title != "" {
		cfg.Title = o.Title
	}
	return cfg, nil
}

// load decodes or fetches the request's records and names their source for
// the run log.
func (s *Server) load(ctx context.Context, req *ConvertRequest) (*record.Batch, string, error) {
	switch {
	case req.Index != "":
		b, err := s.cfg.VMR.Records(ctx, req.Index)
		return b, "ntvmr:" + req.Index, err
	case req.XML != "":
		b, err := engine.DecodeRecords([]byte(req.XML), engine.FormatXML)
		return b, "request:xml", err
	default:
		b, err := engine.DecodeRecords(req.Records, engine.FormatJSON)
		return b, "request:json", err
	}
}

// convert runs one conversion and keeps the document for later retrieval.
func (s *Server) convert(ctx context.Context, req *ConvertRequest, progress func(engine.Progress)) (*ConvertResult, []byte, error) {
	start := time.Now()
	cfg, err := req.Options.apply(s.cfg.Engine)
	if err != nil {
		return nil, nil, err
	}
	cfg.Progress = progress

	batch, source, err := s.load(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	ctx = logging.WithRunID(ctx, logging.NewRunID())
	logging.RunStarted(ctx, source, len(batch.Records))
	res, err := engine.New(cfg).ConvertBatch(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	for _, ue := range res.Errors {
		logging.UnitFailed(ctx, ue.Index, ue.Anchor, ue.Err)
	}

	digest, err := s.keep(res.Output)
	if err != nil {
		return nil, nil, err
	}
	elapsed := time.Since(start)
	logging.RunFinished(ctx, res.Units, len(res.Errors), elapsed, "blake3", digest)

	return &ConvertResult{
		Digest:    digest,
		Title:     res.Document.Title,
		Units:     res.Units,
		Witnesses: len(res.Document.Witnesses),
		Failures:  archive.Failures(res.Errors),
		Duration:  elapsed.String(),
	}, res.Output, nil
}

// keep caches a document and writes it to the store, if there is one.
func (s *Server) keep(doc []byte) (string, error) {
	digest := cas.Digest(doc)
	s.documents.Put(digest, doc)
	if s.store != nil {
		if _, err := s.store.Put(doc); err != nil {
			return "", err
		}
	}
	return digest, nil
}

// classify maps an error to an HTTP status and error code.
func classify(err error) (int, string) {
	var upstream *vmr.HTTPError
	var unit *cerrors.UnitError
	var report cerrors.UnitErrors
	switch {
	case errors.As(err, &upstream):
		if upstream.IsNotFound() {
			return http.StatusNotFound, "INDEX_NOT_FOUND"
		}
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	case errors.Is(err, errJobFinished):
		return http.StatusConflict, "JOB_FINISHED"
	case errors.Is(err, cerrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &report), errors.As(err, &unit):
		return http.StatusUnprocessableEntity, "UNIT_FAILED"
	case errors.Is(err, cerrors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, cerrors.ErrSiglumCollision),
		errors.Is(err, cerrors.ErrEmptyUnit),
		errors.Is(err, cerrors.ErrAmbiguousLemma),
		errors.Is(err, cerrors.ErrOverlapConflict),
		errors.Is(err, cerrors.ErrStructuralIntegrity):
		return http.StatusUnprocessableEntity, "CONVERSION_FAILED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
