// Package dom is an HTML document whose head receives the stylesheet links
// and scripts injected by the singleton dependency loader.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const blank = "<!DOCTYPE html><html><head></head><body></body></html>"

// ScriptAttr marks scripts appended by AppendScript with their symbolic name.
const ScriptAttr = "data-singleton"

// Script is a script element appended by AppendScript.
type Script struct {
	Name   string
	Source string
}

// Document is safe for concurrent use.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	head *html.Node
}

// New returns an empty HTML5 document.
func New() *Document {
	d, err := Parse(strings.NewReader(blank))
	if err != nil {
		panic(err)
	}
	return d
}

// Parse reads an HTML document. The parser always synthesizes a head element.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	head := find(root, atom.Head)
	if head == nil {
		return nil, errors.New("parse document: no head element")
	}
	return &Document{root: root, head: head}, nil
}

// AppendStylesheet appends <link type="text/css" rel="stylesheet" media="screen" href=href> to the head.
func (d *Document) AppendStylesheet(href string) error {
	if href == "" {
		return errors.New("append stylesheet: href is empty")
	}
	link := &html.Node{
		Type:     html.ElementNode,
		Data:     "link",
		DataAtom: atom.Link,
		Attr: []html.Attribute{
			{Key: "type", Val: "text/css"},
			{Key: "rel", Val: "stylesheet"},
			{Key: "media", Val: "screen"},
			{Key: "href", Val: href},
		},
	}
	d.mu.Lock()
	d.head.AppendChild(link)
	d.mu.Unlock()
	return nil
}

// AppendScript appends an inline script holding src to the head.
// Every "</script" in src is written as "<\/script" so the element cannot end early.
func (d *Document) AppendScript(name string, src []byte) error {
	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "type", Val: "text/javascript"},
			{Key: ScriptAttr, Val: name},
		},
	}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: escapeScript(string(src))})
	d.mu.Lock()
	d.head.AppendChild(script)
	d.mu.Unlock()
	return nil
}

// Links returns the href of every stylesheet link in the head, in document order.
func (d *Document) Links() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for c := d.head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Link && attr(c, "rel") == "stylesheet" {
			out = append(out, attr(c, "href"))
		}
	}
	return out
}

// Scripts returns the scripts appended by AppendScript, in document order,
// with the closing-tag escaping undone.
func (d *Document) Scripts() []Script {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Script
	for c := d.head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Script {
			continue
		}
		name, ok := lookupAttr(c, ScriptAttr)
		if !ok {
			continue
		}
		var src strings.Builder
		for t := c.FirstChild; t != nil; t = t.NextSibling {
			if t.Type == html.TextNode {
				src.WriteString(t.Data)
			}
		}
		out = append(out, Script{Name: name, Source: unescapeScript(src.String())})
	}
	return out
}

func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func (d *Document) String() string {
	var b bytes.Buffer
	if err := d.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

var (
	scriptCloseTag  = regexp.MustCompile(`(?i)</(script)`)
	escapedCloseTag  = regexp.MustCompile(`(?i)<\\/(script)`)
)

func escapeScript(src string) string {
	return scriptCloseTag.ReplaceAllString(src, `<\/$1`)
}

func unescapeScript(src string) string {
	return escapedCloseTag.ReplaceAllString(src, `</$1`)
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
