// Package driver fills and submits the contest entry form in a Chromium browser.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config describes the form and how to drive it.
type Config struct {
	// URL of the entry form.
	URL string `yaml:"url"`

	// ControlURL connects to a running browser instead of launching one.
	ControlURL string `yaml:"control_url"`
	// Bin is the browser executable; empty lets the launcher find or download one.
	Bin      string `yaml:"bin"`
	Headless bool   `yaml:"headless"`

	// ReadySelector must be present before the form is filled.
	ReadySelector string  `yaml:"ready_selector"`
	Fields        []Field `yaml:"fields"`

	// EmailColumn is replaced by a random address in probe mode.
	EmailColumn string `yaml:"email_column"`

	UploadSelector string `yaml:"upload_selector"`
	AgreeSelector  string `yaml:"agree_selector"`
	SubmitSelector string `yaml:"submit_selector"`

	// ResultSelector matches the control shown after submission; its text carries WinText or LoseText.
	ResultSelector string `yaml:"result_selector"`
	WinText        string `yaml:"win_text"`
	LoseText       string `yaml:"lose_text"`

	// ErrorSelector matches the form's error notices, read when no result shows up.
	ErrorSelector string `yaml:"error_selector"`

	// SuccessURLPrefix is where a real entry must land after clicking the result control.
	SuccessURLPrefix string `yaml:"success_url_prefix"`

	LoadTimeout   time.Duration `yaml:"-"`
	ResultTimeout time.Duration `yaml:"-"`
	// Settle is the pause after uploads and clicks that trigger client-side work.
	Settle time.Duration `yaml:"-"`

	ScreenshotDir string `yaml:"screenshot_dir"`
	// SaveScreenshots captures every result, not only failures.
	SaveScreenshots bool `yaml:"save_screenshots"`
}

// FormDriver implements domain.Submitter with go-rod.
//
// The browser is started on first use and shared by all attempts; each attempt runs in its own
// incognito context so no cookies leak between identities.
type FormDriver struct {
	cfg Config
	log *zap.Logger
	rnd *rand.Rand

	mu      sync.Mutex
	browser *rod.Browser
}

// New checks the selectors the flow depends on.
func New(cfg Config, log *zap.Logger) (*FormDriver, error) {
	for name, v := range map[string]string{
		"url":             cfg.URL,
		"submit_selector": cfg.SubmitSelector,
		"result_selector": cfg.ResultSelector,
		"win_text":        cfg.WinText,
	} {
		if v == "" {
			return nil, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("driver: %s is required", name))
		}
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 25 * time.Second
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = 30 * time.Second
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FormDriver{
		cfg: cfg,
		log: log,
		rnd: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}, nil
}

// Start launches or connects to the browser. It is a no-op once connected.
func (d *FormDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return nil
	}

	controlURL := d.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(d.cfg.Headless)
		if d.cfg.Bin != "" {
			l = l.Bin(d.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	d.browser = b
	d.log.Info("browser connected", zap.String("control_url", controlURL), zap.Bool("headless", d.cfg.Headless))
	return nil
}

// Close shuts the browser down.
func (d *FormDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	return err
}

// Submit implements domain.Submitter.
func (d *FormDriver) Submit(ctx context.Context, a domain.Attempt) domain.Outcome {
	log := d.log.With(zap.String("attempt", a.ID), zap.String("mode", string(a.Mode)))

	if err := d.Start(ctx); err != nil {
		return domain.Failed(err)
	}
	d.mu.Lock()
	b := d.browser
	d.mu.Unlock()

	incognito, err := b.Incognito()
	if err != nil {
		return domain.Failed(fmt.Errorf("incognito context: %w", err))
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{URL: d.cfg.URL})
	if err != nil {
		return domain.Failed(fmt.Errorf("open %s: %w", d.cfg.URL, err))
	}
	page = page.Context(ctx)

	out := d.run(ctx, page, a, log)
	if out.Result == domain.Errored {
		d.screenshot(page, "error", a.ID, log)
	}
	return out
}

func (d *FormDriver) run(ctx context.Context, page *rod.Page, a domain.Attempt, log *zap.Logger) domain.Outcome {
	loading := page.Timeout(d.cfg.LoadTimeout)
	if err := loading.WaitLoad(); err != nil {
		return domain.Failed(fmt.Errorf("load form: %w", err))
	}
	if d.cfg.ReadySelector != "" {
		if _, err := loading.Element(d.cfg.ReadySelector); err != nil {
			return domain.Failed(fmt.Errorf("form not ready: %w", err))
		}
	}

	log.Info("filling form", zap.String("identity", a.Identity.Key))
	for _, f := range d.cfg.Fields {
		if err := d.fill(ctx, page, f, a); err != nil {
			return domain.Failed(err)
		}
	}

	if d.cfg.UploadSelector != "" {
		el, err := page.Timeout(d.cfg.LoadTimeout).Element(d.cfg.UploadSelector)
		if err != nil {
			return domain.Failed(fmt.Errorf("upload control: %w", err))
		}
		if err := el.SetFiles([]string{a.Asset.Path}); err != nil {
			return domain.Failed(fmt.Errorf("upload %s: %w", a.Asset.Name, err))
		}
		log.Info("receipt uploaded", zap.String("receipt", a.Asset.Name))
		d.settle(ctx)
	}

	if d.cfg.AgreeSelector != "" {
		if err := d.check(page, d.cfg.AgreeSelector); err != nil {
			return domain.Failed(err)
		}
	}

	submit, err := page.Element(d.cfg.SubmitSelector)
	if err != nil {
		return domain.Failed(fmt.Errorf("submit control: %w", err))
	}
	if disabled, _ := submit.Attribute("disabled"); disabled != nil {
		return domain.Failed(errs.New(errs.ErrSubmission, "submit button is disabled"))
	}
	log.Info("submitting form")
	if _, err := submit.Eval(`() => this.click()`); err != nil {
		return domain.Failed(fmt.Errorf("submit: %w", err))
	}

	pattern := regexp.QuoteMeta(d.cfg.WinText)
	if d.cfg.LoseText != "" {
		pattern += "|" + regexp.QuoteMeta(d.cfg.LoseText)
	}
	result, err := page.Timeout(d.cfg.ResultTimeout).ElementR(d.cfg.ResultSelector, pattern)
	if err != nil {
		return domain.Failed(d.formError(page, err))
	}
	text, err := result.Text()
	if err != nil {
		return domain.Failed(fmt.Errorf("read result: %w", err))
	}

	verdict := classify(text, d.cfg.WinText, d.cfg.LoseText)
	if verdict == domain.Errored {
		return domain.Outcome{Result: domain.Errored, Reason: errs.New(errs.ErrSubmission, fmt.Sprintf("unknown result text %q", text)), Detail: text}
	}
	log.Info("result shown", zap.String("result", string(verdict)), zap.String("text", text))
	if d.cfg.SaveScreenshots {
		d.screenshot(page, string(verdict), a.ID, log)
	}

	if a.Mode == domain.Real {
		if err := d.clickThrough(ctx, page, result, log); err != nil {
			return domain.Outcome{Result: domain.Errored, Reason: err, Detail: text}
		}
		if d.cfg.SaveScreenshots {
			d.screenshot(page, "confirmation", a.ID, log)
		}
	}
	return domain.Outcome{Result: verdict, Detail: text}
}

// value resolves what goes into f, swapping the email for a throwaway one on probes.
func (d *FormDriver) value(f Field, a domain.Attempt) (string, error) {
	raw := f.Value
	if raw == "" {
		raw = a.Identity.Field(f.Column)
		if a.Mode == domain.Probe && f.Column != "" && f.Column == d.cfg.EmailColumn {
			raw = randomEmail(d.rnd)
		}
	}
	v, err := formatValue(f.Format, raw)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", f.Selector, err)
	}
	return v, nil
}

func (d *FormDriver) fill(ctx context.Context, page *rod.Page, f Field, a domain.Attempt) error {
	v, err := d.value(f, a)
	if err != nil {
		return err
	}
	if v == "" && f.Optional {
		return nil
	}

	el, err := page.Element(f.Selector)
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Selector, err)
	}

	switch f.Kind {
	case "", Text:
		err = el.Input(v)
	case Select:
		err = el.Select([]string{v}, true, rod.SelectorTypeText)
	case Pick:
		if err = el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			break
		}
		d.settle(ctx)
		var opt *rod.Element
		if opt, err = page.Timeout(d.cfg.LoadTimeout).ElementR("*", regexp.QuoteMeta(v)); err == nil {
			err = opt.Click(proto.InputMouseButtonLeft, 1)
		}
	default:
		err = fmt.Errorf("unknown kind %q", f.Kind)
	}
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Selector, err)
	}
	return nil
}

func (d *FormDriver) check(page *rod.Page, selector string) error {
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("agree box: %w", err)
	}
	res, err := el.Eval(`() => this.checked`)
	if err != nil {
		return fmt.Errorf("agree box: %w", err)
	}
	if res.Value.Bool() {
		return nil
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *FormDriver) clickThrough(ctx context.Context, page *rod.Page, result *rod.Element, log *zap.Logger) error {
	if err := result.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click result: %w", err)
	}
	if d.cfg.SuccessURLPrefix == "" {
		return nil
	}

	deadline := time.Now().Add(d.cfg.ResultTimeout)
	for {
		info, err := page.Info()
		if err != nil {
			return fmt.Errorf("read final url: %w", err)
		}
		if strings.HasPrefix(info.URL, d.cfg.SuccessURLPrefix) {
			log.Info("entry confirmed", zap.String("url", info.URL))
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.ErrSubmission, fmt.Sprintf("unexpected final url %s, want prefix %s", info.URL, d.cfg.SuccessURLPrefix))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// formError turns a missing result into the form's own error message when it shows one.
func (d *FormDriver) formError(page *rod.Page, cause error) error {
	if d.cfg.ErrorSelector != "" {
		if els, err := page.Elements(d.cfg.ErrorSelector); err == nil {
			for _, el := range els {
				if visible, _ := el.Visible(); !visible {
					continue
				}
				if text, _ := el.Text(); strings.TrimSpace(text) != "" {
					return errs.New(errs.ErrSubmission, strings.TrimSpace(text))
				}
			}
		}
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return errs.New(errs.ErrSubmission, "timed out waiting for the result")
	}
	return fmt.Errorf("%w: %v", errs.ErrSubmission, cause)
}

func (d *FormDriver) settle(ctx context.Context) {
	if d.cfg.Settle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.cfg.Settle):
	}
}

func (d *FormDriver) screenshot(page *rod.Page, prefix, attemptID string, log *zap.Logger) {
	if d.cfg.ScreenshotDir == "" {
		return
	}
	if err := os.MkdirAll(d.cfg.ScreenshotDir, 0o755); err != nil {
		log.Warn("failed to save screenshot", zap.Error(err))
		return
	}
	img, err := page.Screenshot(true, nil)
	if err != nil {
		log.Warn("failed to save screenshot", zap.Error(err))
		return
	}
	path := filepath.Join(d.cfg.ScreenshotDir, screenshotName(prefix, attemptID, time.Now()))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		log.Warn("failed to save screenshot", zap.Error(err))
		return
	}
	log.Info("screenshot saved", zap.String("path", path))
}
