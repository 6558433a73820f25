package artifact

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// DefaultDOMLimit caps the cleaned DOM snapshot size in bytes.
const DefaultDOMLimit = 512 * 1024

// DOMSnapshot is a page's markup reduced to its structure and the
// attributes a locator can target.
type DOMSnapshot struct {
	Title     string
	HTML      string
	Truncated bool
}

// CleanDOM strips scripts, styles, comments and embedded content from raw
// page markup, keeps targeting attributes (id, class, role, aria-*, data-*,
// name, placeholder, ...) and redacts values of password and hidden inputs.
func CleanDOM(raw string, limit int) (*DOMSnapshot, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if limit <= 0 {
		limit = DefaultDOMLimit
	}

	w := &domWriter{limit: limit}
	w.node(doc, 0)
	return &DOMSnapshot{
		Title:     pageTitle(doc),
		HTML:      w.b.String(),
		Truncated: w.truncated,
	}, nil
}

type domWriter struct {
	b         strings.Builder
	limit     int
	truncated bool
}

func (w *domWriter) full() bool {
	if w.b.Len() >= w.limit {
		w.truncated = true
	}
	return w.truncated
}

func (w *domWriter) node(n *html.Node, depth int) {
	if w.full() {
		return
	}
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		w.text(n.Data)
	case html.ElementNode:
		w.element(n, depth)
	default:
		w.children(n, depth)
	}
}

func (w *domWriter) children(n *html.Node, depth int) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c, depth)
		if w.truncated {
			return
		}
	}
}

func (w *domWriter) text(data string) {
	text := strings.TrimSpace(data)
	if text == "" {
		return
	}
	remaining := w.limit - w.b.Len()
	if remaining <= 0 {
		w.truncated = true
		return
	}
	if len(text) > remaining {
		w.b.WriteString(html.EscapeString(text[:remaining]))
		w.b.WriteString("...")
		w.truncated = true
		return
	}
	w.b.WriteString(html.EscapeString(text))
}

func (w *domWriter) element(n *html.Node, depth int) {
	tag := strings.ToLower(n.Data)
	if droppedElements[tag] {
		return
	}

	block := blockElements[tag]
	if block && depth > 0 {
		w.newline(depth)
	}

	w.b.WriteString("<" + tag)
	redact := tag == "input" && sensitiveInput(n)
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if !keepAttribute(tag, key) {
			continue
		}
		val := attr.Val
		if redact && key == "value" {
			val = "[redacted]"
		}
		fmt.Fprintf(&w.b, ` %s="%s"`, key, html.EscapeString(val))
	}
	w.b.WriteString(">")

	w.children(n, depth+1)

	if voidElements[tag] {
		return
	}
	if block {
		w.newline(depth)
	}
	w.b.WriteString("</" + tag + ">")
}

func (w *domWriter) newline(depth int) {
	w.b.WriteString("\n")
	w.b.WriteString(strings.Repeat("  ", depth))
}

func sensitiveInput(n *html.Node) bool {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, "type") {
			switch strings.ToLower(attr.Val) {
			case "password", "hidden":
				return true
			}
		}
	}
	return false
}

var droppedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"iframe": true, "embed": true, "object": true, "svg": true, "canvas": true,
}

var blockElements = map[string]bool{
	"html": true, "head": true, "body": true,
	"div": true, "p": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "dialog": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "thead": true, "tbody": true,
	"tr": true, "td": true, "th": true, "form": true, "fieldset": true, "pre": true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// keepAttribute reports whether an attribute helps locate or identify an
// element when reading a failure snapshot.
func keepAttribute(tag, key string) bool {
	switch key {
	case "id", "class", "role", "title", "name", "disabled", "hidden", "for":
		return true
	}
	if strings.HasPrefix(key, "aria-") || strings.HasPrefix(key, "data-") {
		return true
	}
	switch tag {
	case "a":
		return key == "href"
	case "img":
		return key == "alt" || key == "src"
	case "input", "textarea", "select", "option":
		return key == "type" || key == "placeholder" || key == "value" || key == "checked" || key == "selected"
	case "button":
		return key == "type"
	case "form":
		return key == "action" || key == "method"
	}
	return false
}

func pageTitle(doc *html.Node) string {
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				return strings.TrimSpace(n.FirstChild.Data)
			}
			return ""
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if title := find(c); title != "" {
				return title
			}
		}
		return ""
	}
	return find(doc)
}
