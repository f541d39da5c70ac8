package certificate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/mind-engage/safetytest/internal/storage"
)

// TemplatePrefix is where certificate templates live in the blob store.
const TemplatePrefix = "templates/"

const builtinTemplate = `Certificate of Completion
This certifies that
<<FirstName>> <<LastName>>
Student ID <<ExternalID>>
completed the laboratory safety test on <<CompletionDate>>
with a score of <<CalculatedScore>>%.`

type Fields struct {
	ClassCode      string
	Index          int // attempt record index within the class
	FirstName      string
	LastName       string
	ExternalID     string
	Email          string
	CompletionDate time.Time
	ScorePercent   decimal.Decimal
}

type Document struct {
	Name        string // file name, also the attachment name
	Key         string // blob key
	ContentType string
	Data        []byte
	Template    string // template actually used, "" for the built-in one
	Fallback    bool   // requested template was missing or unreadable
}

type Renderer interface {
	Render(ctx context.Context, template string, f Fields) (Document, error)
}

// Fill substitutes the <<Placeholder>> markers in text.
func Fill(text string, f Fields) string {
	return strings.NewReplacer(
		"<<FirstName>>", f.FirstName,
		"<<LastName>>", f.LastName,
		"<<ExternalID>>", f.ExternalID,
		"<<Email>>", f.Email,
		"<<CompletionDate>>", f.CompletionDate.Format("01/02/2006"),
		"<<CalculatedScore>>", f.ScorePercent.Round(2).String(),
	).Replace(text)
}

var cleanName = strings.NewReplacer("/", "-", `\`, "-", " ", "-", "..", "-")

// FileName is <external_id>_<last_name>_<MM-DD-YYYY>.pdf with path-hostile
// characters replaced. It names the mail attachment and is not unique.
func FileName(f Fields) string {
	return fmt.Sprintf("%s_%s_%s.pdf",
		cleanName.Replace(f.ExternalID), cleanName.Replace(f.LastName), f.CompletionDate.Format("01-02-2006"))
}

// BlobKey is where the rendered PDF is stored: the attempt record's class
// and index prefix the file name, so students sharing a name never collide.
func BlobKey(f Fields) string {
	return fmt.Sprintf("certificates/%s_%d_%s", cleanName.Replace(f.ClassCode), f.Index, FileName(f))
}

type PDFRenderer struct {
	blobs           storage.BlobStore
	defaultTemplate string
	compress        bool
}

type Option func(*PDFRenderer)

// WithDefaultTemplate names the template used when a class has none.
func WithDefaultTemplate(name string) Option { return func(r *PDFRenderer) { r.defaultTemplate = name } }

func WithCompression(b bool) Option { return func(r *PDFRenderer) { r.compress = b } }

func NewPDFRenderer(blobs storage.BlobStore, opts ...Option) *PDFRenderer {
	r := &PDFRenderer{blobs: blobs, compress: true}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render fills template (a blob under templates/), draws the PDF and stores
// it under certificates/.
func (r *PDFRenderer) Render(ctx context.Context, template string, f Fields) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	text, used, fallback, err := r.template(template)
	if err != nil {
		return Document{}, err
	}

	data, err := r.draw(Fill(text, f), f)
	if err != nil {
		return Document{}, fmt.Errorf("certificate: pdf: %w", err)
	}

	doc := Document{
		Name:        FileName(f),
		ContentType: "application/pdf",
		Data:        data,
		Template:    used,
		Fallback:    fallback,
	}
	key, err := r.blobs.Put(BlobKey(f), bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("certificate: store: %w", err)
	}
	doc.Key = key
	return doc, nil
}

// template resolves the requested template, then the default, then the
// built-in text. fallback reports that the requested one was not used.
func (r *PDFRenderer) template(name string) (text, used string, fallback bool, err error) {
	for i, candidate := range []string{name, r.defaultTemplate} {
		if candidate == "" {
			continue
		}
		text, err := r.load(candidate)
		if err == nil {
			return text, candidate, i > 0 || name == "", nil
		}
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrInvalidKey) {
			return "", "", false, fmt.Errorf("certificate: template %q: %w", candidate, err)
		}
	}
	return builtinTemplate, "", true, nil
}

func (r *PDFRenderer) load(name string) (string, error) {
	rc, err := r.blobs.Get(TemplatePrefix + name)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *PDFRenderer) draw(text string, f Fields) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "Letter", "")
	pdf.SetCompression(r.compress)
	pdf.SetTitle("Safety Test Certificate", true)
	pdf.SetCreationDate(f.CompletionDate)
	pdf.SetMargins(20, 30, 20)
	pdf.AddPage()

	w, h := pdf.GetPageSize()
	pdf.SetDrawColor(40, 70, 120)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, w-20, h-20, "D")

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			pdf.SetFont("Helvetica", "B", 30)
			pdf.CellFormat(0, 18, tr(line), "", 1, "C", false, 0, "")
			pdf.Ln(8)
		case strings.TrimSpace(line) == "":
			pdf.Ln(6)
		default:
			pdf.SetFont("Helvetica", "", 16)
			pdf.MultiCell(0, 10, tr(line), "", "C", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
