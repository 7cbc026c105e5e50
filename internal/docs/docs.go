// Package docs renders the embedded brochure, architecture and training
// documents. Titles are templated from the site settings and fall back to
// fixed defaults whenever the settings cannot be read.
package docs

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

//go:embed content/*.md
var content embed.FS

// Fallback values used when settings are missing or unreadable.
const (
	DefaultTitle        = "Intelligent Operating Centre"
	DefaultOrganisation = "IOC Solutions Ltd"
)

const cacheTTL = 10 * time.Minute

// ErrNotFound is returned for an unknown document slug.
var ErrNotFound = errors.New("document not found")

// SettingsReader supplies the site_title and organisation settings.
type SettingsReader interface {
	Settings() (map[string]string, error)
}

// Site holds the values substituted into a document.
type Site struct {
	Title        string
	Organisation string
}

// Heading is a second-level heading, used for the table of contents.
type Heading struct {
	ID   string
	Text string
}

// Document is a rendered document.
type Document struct {
	Slug     string
	Title    string
	Site     Site
	Headings []Heading
	HTML     template.HTML
}

// Entry describes an available document.
type Entry struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Renderer turns the embedded Markdown into HTML.
type Renderer struct {
	settings SettingsReader
	defaults Site
	md       goldmark.Markdown
	cache    *ristretto.Cache
}

// NewRenderer creates a renderer. settings may be nil, in which case the
// defaults are always used. Empty default fields take the package defaults.
func NewRenderer(settings SettingsReader, defaults Site) (*Renderer, error) {
	if defaults.Title == "" {
		defaults.Title = DefaultTitle
	}
	if defaults.Organisation == "" {
		defaults.Organisation = DefaultOrganisation
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     8 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating document cache: %w", err)
	}
	return &Renderer{
		settings: settings,
		defaults: defaults,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		cache: c,
	}, nil
}

// Close releases the document cache.
func (r *Renderer) Close() {
	r.cache.Close()
}

// Site returns the current title and organisation. Any error reading the
// settings yields the defaults.
func (r *Renderer) Site() Site {
	site := r.defaults
	if r.settings == nil {
		return site
	}
	values, err := r.settings.Settings()
	if err != nil {
		slog.Warn("reading site settings, using defaults", "error", err)
		return site
	}
	if v := strings.TrimSpace(values["site_title"]); v != "" {
		site.Title = v
	}
	if v := strings.TrimSpace(values["organisation"]); v != "" {
		site.Organisation = v
	}
	return site
}

// List returns the available documents sorted by slug.
func (r *Renderer) List() []Entry {
	site := r.Site()
	names, _ := fs.Glob(content, "content/*.md")
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		slug := strings.TrimSuffix(path.Base(name), ".md")
		src, err := content.ReadFile(name)
		if err != nil {
			continue
		}
		out = append(out, Entry{Slug: slug, Title: firstHeading(substitute(src, site))})
	}
	return out
}

// Render returns the named document. Rendered output is cached per slug and
// site values, so a settings change shows up on the next request.
func (r *Renderer) Render(slug string) (*Document, error) {
	if slug == "" || strings.ContainsAny(slug, "/\\.") {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	site := r.Site()
	key := slug + "\x00" + site.Title + "\x00" + site.Organisation
	if v, ok := r.cache.Get(key); ok {
		if doc, ok := v.(*Document); ok {
			return doc, nil
		}
	}

	src, err := content.ReadFile("content/" + slug + ".md")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	src = substitute(src, site)

	doc, err := r.convert(slug, src)
	if err != nil {
		return nil, err
	}
	doc.Site = site

	r.cache.SetWithTTL(key, doc, int64(len(doc.HTML)), cacheTTL)
	return doc, nil
}

func (r *Renderer) convert(slug string, src []byte) (*Document, error) {
	reader := text.NewReader(src)
	root := r.md.Parser().Parse(reader)

	doc := &Document{Slug: slug}
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		switch h.Level {
		case 1:
			if doc.Title == "" {
				doc.Title = headingText(h, src)
			}
		case 2:
			id, _ := h.AttributeString("id")
			idStr, _ := id.([]byte)
			doc.Headings = append(doc.Headings, Heading{ID: string(idStr), Text: headingText(h, src)})
		}
		return ast.WalkSkipChildren, nil
	})

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, src, root); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", slug, err)
	}
	doc.HTML = template.HTML(buf.String()) //nolint:gosec // embedded content, escaped by goldmark
	return doc, nil
}

func substitute(src []byte, site Site) []byte {
	r := strings.NewReplacer(
		"{{site_title}}", site.Title,
		"{{organisation}}", site.Organisation,
	)
	return []byte(r.Replace(string(src)))
}

func firstHeading(src []byte) string {
	for _, line := range strings.Split(string(src), "\n") {
		if t, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

func headingText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(source))
		case *ast.Link, *ast.Emphasis, *ast.CodeSpan:
			buf.WriteString(headingText(c, source))
		}
	}
	return buf.String()
}
