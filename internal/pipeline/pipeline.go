// Package pipeline runs one bill photo through extraction, tax computation, validation,
// document generation and persistence under a single deadline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
	"github.com/IamSmokeY/SnapBooks/internal/invoice"
	"github.com/IamSmokeY/SnapBooks/internal/ledger"
	"github.com/IamSmokeY/SnapBooks/internal/scanning"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultExtractionTimeout = 25 * time.Second

	// DefaultMinConfidence rejects extractions the model itself was unsure about
	DefaultMinConfidence = 0.40

	MaxImageSize = 10 << 20
)

// PDFGenerator renders the printable document
type PDFGenerator interface {
	Generate(ctx context.Context, inv *gst.Invoice) ([]byte, error)
}

// XMLGenerator builds the accounting import file
type XMLGenerator interface {
	Generate(inv *gst.Invoice) ([]byte, error)
}

// Persister stores artifacts and the invoice record. Failures never fail a run.
type Persister interface {
	Save(ctx context.Context, id string, rec *invoice.Record) error
	Upload(ctx context.Context, data []byte, path string, contentType string) (string, error)
}

// Recorder receives run measurements
type Recorder interface {
	RunFinished(kind document.Kind, outcome string, d time.Duration)
	StepFinished(step State, skipped bool, d time.Duration)
	ExtractionAttempt(outcome string)
}

// Config holds the defaults every run starts from
type Config struct {
	Timeout           time.Duration
	ExtractionTimeout time.Duration
	Retry             RetryPolicy
	MinConfidence     float64
	AllowZeroAmount   bool
	Persist           bool
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		ExtractionTimeout: DefaultExtractionTimeout,
		Retry:             DefaultRetryPolicy(),
		MinConfidence:     DefaultMinConfidence,
		Persist:           true,
	}
}

// Options override Config for a single run. Zero values keep the configured default.
type Options struct {
	Timeout           time.Duration
	ExtractionTimeout time.Duration
	MaxAttempts       int
	SkipPersistence   bool
	Source            string
}

// Request is the input of a run. Image is ignored when PreExtracted is set.
type Request struct {
	Image         []byte
	ContentType   string
	PreExtracted  *document.ExtractedDocument
	Kind          document.Kind
	CustomerState string
	Options       Options
}

// Result is the outcome of a run. On failure only Metadata and Err are set.
type Result struct {
	Success    bool
	Invoice    *gst.Invoice
	Document   *document.ExtractedDocument
	Extraction *document.Extraction
	Validation gst.ValidationResult
	PDF        []byte
	XML        []byte
	PDFURL     string
	XMLURL     string
	Metadata   Metadata
	Err        error
}

// Pipeline wires the collaborators of a run. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	extractor scanning.Extractor
	engine    *gst.Engine
	pdf       PDFGenerator
	xml       XMLGenerator
	persister Persister
	recorder  Recorder
	cfg       Config
}

// Option configures optional collaborators
type Option func(*Pipeline)

// WithPersister enables the persisting step
func WithPersister(p Persister) Option {
	return func(pl *Pipeline) {
		pl.persister = p
	}
}

// WithRecorder reports measurements to r
func WithRecorder(r Recorder) Option {
	return func(pl *Pipeline) {
		pl.recorder = r
	}
}

// New creates a Pipeline. Non-positive durations and attempts fall back to the defaults.
func New(extractor scanning.Extractor, engine *gst.Engine, pdf PDFGenerator, xml XMLGenerator, cfg Config, opts ...Option) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = DefaultExtractionTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if cfg.Retry.Classify == nil {
		cfg.Retry.Classify = Classify
	}

	p := &Pipeline{extractor: extractor, engine: engine, pdf: pdf, xml: xml, cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) options(o Options) Options {
	if o.Timeout <= 0 {
		o.Timeout = p.cfg.Timeout
	}
	if o.ExtractionTimeout <= 0 {
		o.ExtractionTimeout = p.cfg.ExtractionTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = p.cfg.Retry.MaxAttempts
	}
	if !p.cfg.Persist {
		o.SkipPersistence = true
	}
	return o
}

// race runs fn in its own goroutine and returns its value unless ctx ends first.
// A value produced after ctx ended is discarded.
func race[T any](ctx context.Context, fn func() T) (T, error) {
	done := make(chan T, 1)
	go func() {
		done <- fn()
	}()

	select {
	case v := <-done:
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func deadlineError(ctxErr error, limit, elapsed time.Duration) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout,
			fmt.Sprintf("pipeline timed out after %dms (limit: %dms)", elapsed.Milliseconds(), limit.Milliseconds()), ctxErr)
	}
	return fmt.Errorf("pipeline cancelled: %w", ctxErr)
}

// Run converts one photo, or a previously extracted document, into an invoice and its
// artifacts. It never returns nil.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	opts := p.options(req.Options)
	started := time.Now()

	kind, err := document.ParseKind(string(req.Kind))
	log := newRunLog(kind, started, p.recorder)
	if err != nil {
		return p.finish(&Result{Err: apperr.Wrap(apperr.KindValidation, "invalid document type", err)}, log, started, opts.Timeout)
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	res, err := race(runCtx, func() *Result {
		return p.execute(runCtx, req, kind, opts, log)
	})
	if err != nil {
		res = &Result{Err: deadlineError(err, opts.Timeout, time.Since(started))}
	}
	return p.finish(res, log, started, opts.Timeout)
}

func (p *Pipeline) finish(res *Result, log *runLog, started time.Time, limit time.Duration) *Result {
	finished := time.Now()
	elapsed := finished.Sub(started)

	final := StateCompleted
	if res.Err != nil {
		final = StateFailed
	}
	res.Success = res.Err == nil
	res.Metadata = log.snapshot(finished, final, res.Err)

	outcome := "success"
	if res.Err != nil {
		outcome = string(apperr.KindOf(res.Err))
		if outcome == "" {
			outcome = "error"
		}
		slog.Error("Pipeline failed",
			"document_type", log.kind,
			"category", outcome,
			"duration_ms", elapsed.Milliseconds(),
			"error", res.Err,
		)
	} else {
		slog.Info("Pipeline complete",
			"document_type", log.kind,
			"invoice_number", res.Invoice.InvoiceNumber,
			"grand_total", res.Invoice.GrandTotal,
			"duration_ms", elapsed.Milliseconds(),
		)
		if elapsed > limit*5/6 {
			slog.Warn("Pipeline finished close to its deadline", "duration_ms", elapsed.Milliseconds(), "limit_ms", limit.Milliseconds())
		}
	}

	if p.recorder != nil {
		p.recorder.RunFinished(log.kind, outcome, elapsed)
	}
	return res
}

func (p *Pipeline) execute(ctx context.Context, req Request, kind document.Kind, opts Options, log *runLog) *Result {
	res := &Result{}
	fail := func(step State, started time.Time, err error, facts Facts) *Result {
		if facts == nil {
			facts = Facts{}
		}
		facts["error"] = err.Error()
		log.add(step, started, facts)
		res.Err = err
		return res
	}

	doc := req.PreExtracted
	if doc != nil {
		log.skip(StateExtracting, Facts{"confidence": doc.Confidence, "items": len(doc.Items)})
	} else {
		started := time.Now()
		ext, attempts, err := p.extract(ctx, req.Image, req.ContentType, opts)
		if err != nil {
			return fail(StateExtracting, started, err, Facts{"attempts": attempts})
		}
		doc = ext.Primary
		res.Extraction = ext
		log.add(StateExtracting, started, Facts{
			"confidence": doc.Confidence,
			"items":      len(doc.Items),
			"documents":  len(ext.Documents),
			"attempts":   attempts,
		})
	}
	res.Document = doc

	started := time.Now()
	inv := p.engine.Calculate(doc, kind, req.CustomerState)
	log.add(StateComputingTax, started, Facts{
		"invoice_number": inv.InvoiceNumber,
		"tax_type":       string(inv.TaxType),
		"grand_total":    inv.GrandTotal,
	})

	started = time.Now()
	validation := gst.Validate(inv, gst.ValidateOptions{AllowZeroAmount: p.cfg.AllowZeroAmount})
	res.Validation = validation
	if !validation.Valid {
		err := &apperr.Error{Kind: apperr.KindValidation, Message: "invoice validation failed", Details: validation.Errors}
		return fail(StateValidating, started, err, Facts{"errors": validation.Errors, "warnings": validation.Warnings})
	}
	log.add(StateValidating, started, Facts{"warnings": len(validation.Warnings)})
	for _, w := range validation.Warnings {
		slog.Warn("Invoice validation warning", "invoice_number", inv.InvoiceNumber, "warning", w)
	}

	started = time.Now()
	pdf, xml, report, err := p.generate(ctx, inv)
	if err != nil {
		return fail(StateGenerating, started, err, nil)
	}
	genFacts := Facts{"pdf_size": len(pdf), "xml_size": len(xml)}
	if !report.Valid {
		genFacts["xml_problems"] = report.Problems
	}
	log.add(StateGenerating, started, genFacts)

	res.Invoice = inv
	res.PDF = pdf
	res.XML = xml

	if !opts.SkipPersistence && p.persister != nil {
		started = time.Now()
		pdfURL, xmlURL, err := p.persist(ctx, inv, doc, pdf, xml, opts.Source)
		res.PDFURL, res.XMLURL = pdfURL, xmlURL
		if err != nil {
			perr := apperr.Wrap(apperr.KindPersistence, "saving invoice failed", err)
			slog.Warn("Persisting invoice failed", "invoice_number", inv.InvoiceNumber, "error", perr)
			log.persistenceFailed(perr)
			log.add(StatePersisting, started, Facts{"error": perr.Error()})
		} else {
			log.add(StatePersisting, started, Facts{"pdf_url": pdfURL, "xml_url": xmlURL})
		}
	}

	return res
}

// generate builds the PDF and the ledger XML concurrently
func (p *Pipeline) generate(ctx context.Context, inv *gst.Invoice) ([]byte, []byte, ledger.Result, error) {
	var (
		pdf    []byte
		xml    []byte
		report ledger.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := p.pdf.Generate(gctx, inv)
		if err != nil {
			return apperr.Wrap(apperr.KindGeneration, "PDF generation failed", err)
		}
		pdf = out
		return nil
	})
	g.Go(func() error {
		out, err := p.xml.Generate(inv)
		if err != nil {
			return apperr.Wrap(apperr.KindGeneration, "XML generation failed", err)
		}
		report = ledger.Validate(out)
		if !report.Valid {
			slog.Warn("Ledger XML validation warnings", "invoice_number", inv.InvoiceNumber, "problems", report.Problems)
		}
		xml = out
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, ledger.Result{}, err
	}
	return pdf, xml, report, nil
}

// persist uploads both artifacts concurrently, then saves the record
func (p *Pipeline) persist(ctx context.Context, inv *gst.Invoice, doc *document.ExtractedDocument, pdf, xml []byte, source string) (string, string, error) {
	id := strings.NewReplacer("/", "-", `\`, "-").Replace(inv.InvoiceNumber)
	pdfPath, xmlPath := invoice.PDFPathFor(id), invoice.XMLPathFor(id)

	var pdfURL, xmlURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := p.persister.Upload(gctx, pdf, pdfPath, "application/pdf")
		pdfURL = u
		return err
	})
	g.Go(func() error {
		u, err := p.persister.Upload(gctx, xml, xmlPath, "application/xml")
		xmlURL = u
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}

	rec := &invoice.Record{
		Invoice:    inv,
		Extraction: doc,
		Source:     source,
		PDFPath:    pdfPath,
		XMLPath:    xmlPath,
		PDFURL:     pdfURL,
		XMLURL:     xmlURL,
	}
	if err := p.persister.Save(ctx, id, rec); err != nil {
		return pdfURL, xmlURL, err
	}
	return pdfURL, xmlURL, nil
}

type extraction struct {
	ext      *document.Extraction
	attempts int
	err      error
}

// Extract runs only the extraction stage, for previews before a document kind is chosen
func (p *Pipeline) Extract(ctx context.Context, image []byte, contentType string, opts Options) (*document.Extraction, error) {
	opts = p.options(opts)
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	out, err := race(ctx, func() extraction {
		ext, attempts, err := p.extract(ctx, image, contentType, opts)
		return extraction{ext: ext, attempts: attempts, err: err}
	})
	if p.recorder != nil {
		p.recorder.StepFinished(StateExtracting, false, time.Since(started))
	}
	if err != nil {
		return nil, deadlineError(err, opts.Timeout, time.Since(started))
	}
	if out.err != nil {
		return nil, out.err
	}

	slog.Info("Extraction complete",
		"attempts", out.attempts,
		"confidence", out.ext.Primary.Confidence,
		"items", len(out.ext.Primary.Items),
		"documents", len(out.ext.Documents),
	)
	return out.ext, nil
}

func checkImage(image []byte) error {
	switch {
	case len(image) == 0:
		return apperr.Wrap(apperr.KindExtractionSchema, "invalid image", errors.New("empty image"))
	case len(image) > MaxImageSize:
		return apperr.Wrap(apperr.KindExtractionSchema, "invalid image", errors.New("image too large (max 10MB)"))
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context, image []byte, contentType string, opts Options) (*document.Extraction, int, error) {
	if err := checkImage(image); err != nil {
		return nil, 0, err
	}

	policy := p.cfg.Retry
	policy.MaxAttempts = opts.MaxAttempts

	var ext *document.Extraction
	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		parsed, err := p.attempt(ctx, image, contentType, opts.ExtractionTimeout)
		if err != nil {
			verdict := policy.Classify(err)
			slog.Debug("Extraction attempt failed", "attempt", attempt, "verdict", verdict, "error", err)
			if p.recorder != nil {
				p.recorder.ExtractionAttempt(verdict.String())
			}
			return err
		}
		if p.recorder != nil {
			p.recorder.ExtractionAttempt("success")
		}
		ext = parsed
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return ext, attempts, nil
}

// attempt is one bounded call to the extraction service followed by parsing and acceptance
func (p *Pipeline) attempt(ctx context.Context, image []byte, contentType string, timeout time.Duration) (*document.Extraction, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := p.extractor.Extract(actx, image, contentType)
	if err != nil {
		if _, ok := apperr.As(err); !ok && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Service(apperr.CodeTimeout, fmt.Sprintf("extraction timed out after %s", timeout), err)
		}
		return nil, err
	}

	ext, err := scanning.ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	if err := p.accept(ext.Primary); err != nil {
		return nil, err
	}
	return ext, nil
}

func (p *Pipeline) accept(doc *document.ExtractedDocument) error {
	if doc == nil || len(doc.Items) == 0 {
		return apperr.New(apperr.KindExtractionUnrecognizable,
			"No items found on the bill. Please retake the photo with every line visible.")
	}
	if doc.Confidence < p.cfg.MinConfidence {
		return apperr.New(apperr.KindExtractionUnrecognizable,
			fmt.Sprintf("Could not read the handwriting clearly (confidence %.2f). Please ensure good lighting and clear text.", doc.Confidence))
	}
	return nil
}
