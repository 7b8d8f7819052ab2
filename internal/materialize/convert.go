package materialize

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Converter turns a rich-text document into a PDF inside outDir.
type Converter interface {
	Name() string
	Convert(ctx context.Context, src, outDir string) (string, error)
}

// ExecConfig describes an external conversion binary.
type ExecConfig struct {
	Binary    string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
}

// LibreOffice converts documents with a headless office suite.
type LibreOffice struct {
	cfg    ExecConfig
	logger *slog.Logger
}

var _ Converter = (*LibreOffice)(nil)

// NewLibreOffice builds a converter; zero values fall back to soffice with
// three attempts one second apart.
func NewLibreOffice(cfg ExecConfig, logger *slog.Logger) *LibreOffice {
	if cfg.Binary == "" {
		cfg.Binary = "soffice"
	}
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LibreOffice{cfg: cfg, logger: logger}
}

// Name identifies the strategy in attempt logs.
func (l *LibreOffice) Name() string { return "libreoffice" }

// Convert writes <outDir>/<base>.pdf, retrying transient failures. Each call
// gets a private user profile so concurrent conversions do not collide.
func (l *LibreOffice) Convert(ctx context.Context, src, outDir string) (string, error) {
	bin, err := exec.LookPath(l.cfg.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s not installed", ErrNotApplicable, l.cfg.Binary)
	}

	profile, err := os.MkdirTemp("", "gradepipe-soffice-*")
	if err != nil {
		return "", fmt.Errorf("libreoffice profile dir: %w", err)
	}
	defer os.RemoveAll(profile)
	profileArg := "-env:UserInstallation=" + (&url.URL{Scheme: "file", Path: filepath.ToSlash(profile)}).String()

	target := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".pdf")

	var lastErr error
	for attempt := 1; attempt <= l.cfg.Retries; attempt++ {
		_, lastErr = run(ctx, l.cfg.Timeout, bin, profileArg, "--headless", "--convert-to", "pdf", "--outdir", outDir, src)
		if lastErr == nil {
			if _, statErr := os.Stat(target); statErr == nil {
				return target, nil
			}
			lastErr = fmt.Errorf("no output written to %s", target)
		}
		l.logger.Debug("libreoffice attempt failed", "attempt", attempt, "file", filepath.Base(src), "error", lastErr)

		if attempt < l.cfg.Retries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(l.cfg.RetryWait):
			}
		}
	}
	return "", fmt.Errorf("libreoffice failed after %d attempts: %w", l.cfg.Retries, lastErr)
}

// Pandoc is the second-choice converter.
type Pandoc struct {
	cfg ExecConfig
}

var _ Converter = (*Pandoc)(nil)

// NewPandoc builds a converter; the binary defaults to pandoc.
func NewPandoc(cfg ExecConfig) *Pandoc {
	if cfg.Binary == "" {
		cfg.Binary = "pandoc"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Pandoc{cfg: cfg}
}

// Name identifies the strategy in attempt logs.
func (p *Pandoc) Name() string { return "pandoc" }

// Convert writes <outDir>/<base>.pandoc.pdf.
func (p *Pandoc) Convert(ctx context.Context, src, outDir string) (string, error) {
	bin, err := exec.LookPath(p.cfg.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s not installed", ErrNotApplicable, p.cfg.Binary)
	}

	target := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".pandoc.pdf")
	if _, err := run(ctx, p.cfg.Timeout, bin, src, "-o", target); err != nil {
		return "", fmt.Errorf("pandoc: %w", err)
	}
	return target, nil
}

func run(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[:512]
		}
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, msg)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(bin), err)
	}
	return stdout.Bytes(), nil
}
