package certificate

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/safetytest/internal/storage"
)

func fields() Fields {
	return Fields{
		ClassCode:      "CHEM101",
		Index:          0,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		ExternalID:     "B001",
		Email:          "ada@example.edu",
		CompletionDate: time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
		ScorePercent:   decimal.RequireFromString("87.5"),
	}
}

func newStore(t *testing.T) *storage.FSStore {
	t.Helper()
	s, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFillReplacesEveryPlaceholder(t *testing.T) {
	got := Fill("<<FirstName>> <<LastName>> (<<ExternalID>>, <<Email>>) on <<CompletionDate>>: <<CalculatedScore>>%", fields())
	assert.Equal(t, "Ada Lovelace (B001, ada@example.edu) on 03/04/2026: 87.5%", got)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "B001_Lovelace_03-04-2026.pdf", FileName(fields()))

	f := fields()
	f.LastName = "de la Cruz/../x"
	assert.NotContains(t, FileName(f), "/")
}

func TestRenderUsesClassTemplateAndStoresPDF(t *testing.T) {
	blobs := newStore(t)
	_, err := blobs.Put(TemplatePrefix+"chem.txt", strings.NewReader("Chemistry Lab Safety\nAwarded to <<FirstName>> <<LastName>>"))
	require.NoError(t, err)

	r := NewPDFRenderer(blobs, WithCompression(false))
	doc, err := r.Render(context.Background(), "chem.txt", fields())
	require.NoError(t, err)

	assert.False(t, doc.Fallback)
	assert.Equal(t, "chem.txt", doc.Template)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "B001_Lovelace_03-04-2026.pdf", doc.Name)
	assert.Equal(t, "certificates/CHEM101_0_B001_Lovelace_03-04-2026.pdf", doc.Key)
	assert.True(t, strings.HasPrefix(string(doc.Data), "%PDF-"))
	assert.Contains(t, string(doc.Data), "Awarded to Ada Lovelace")

	rc, err := blobs.Get(doc.Key)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, doc.Data, stored)
}

func TestRenderFallsBackToDefaultTemplate(t *testing.T) {
	blobs := newStore(t)
	_, err := blobs.Put(TemplatePrefix+"default.txt", strings.NewReader("Default Certificate\n<<FirstName>> scored <<CalculatedScore>>"))
	require.NoError(t, err)
	r := NewPDFRenderer(blobs, WithDefaultTemplate("default.txt"), WithCompression(false))

	for _, requested := range []string{"", "missing.txt"} {
		doc, err := r.Render(context.Background(), requested, fields())
		require.NoError(t, err)
		assert.True(t, doc.Fallback, requested)
		assert.Equal(t, "default.txt", doc.Template)
		assert.Contains(t, string(doc.Data), "Ada scored 87.5")
	}
}

func TestRenderFallsBackToBuiltinTemplate(t *testing.T) {
	r := NewPDFRenderer(newStore(t), WithCompression(false))
	doc, err := r.Render(context.Background(), "gone.txt", fields())
	require.NoError(t, err)
	assert.True(t, doc.Fallback)
	assert.Empty(t, doc.Template)
	assert.Contains(t, string(doc.Data), "Certificate of Completion")
}

func TestRenderKeepsCertificatesOfSameNamedStudentsApart(t *testing.T) {
	blobs := newStore(t)
	_, err := blobs.Put(TemplatePrefix+"who.txt", strings.NewReader("Awarded to <<Email>>"))
	require.NoError(t, err)
	r := NewPDFRenderer(blobs, WithCompression(false))

	first := fields()
	first.FirstName, first.LastName, first.ExternalID = "Not Found", "Not Found", "Not Found"
	first.Email = "one@example.edu"
	second := first
	second.Index = 1
	second.Email = "two@example.edu"

	a, err := r.Render(context.Background(), "who.txt", first)
	require.NoError(t, err)
	b, err := r.Render(context.Background(), "who.txt", second)
	require.NoError(t, err)

	assert.Equal(t, a.Name, b.Name)
	assert.NotEqual(t, a.Key, b.Key)

	rc, err := blobs.Get(a.Key)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, a.Data, stored)
	assert.Contains(t, string(stored), "one@example.edu")
	assert.NotContains(t, string(stored), "two@example.edu")
}
