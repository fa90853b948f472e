package crawler

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	productLinkSelector    = "a.title[href]"
	paginationLinkSelector = ".pagination a.number[href]"
)

// parseDocument never fails: unreadable markup becomes an empty document so
// every selector simply misses.
func parseDocument(body []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	return doc
}

// baseURL is the page URL, overridden by a <base href> when present.
func baseURL(doc *goquery.Document, pageURL string) *url.URL {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			return base.ResolveReference(ref)
		}
	}
	return base
}

// resolveLinks returns the absolute form of every href in sel, in document
// order. Blank and unparseable hrefs are skipped.
func resolveLinks(sel *goquery.Selection, base *url.URL) []string {
	links := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if !ref.IsAbs() {
			return
		}
		ref.Fragment = ""
		links = append(links, ref.String())
	})
	return links
}

// firstText returns the first direct text child found across the nodes of
// s in document order, trimmed. Inline children are skipped, so
// <h1>a <b>b</b> c</h1> yields "a".
func firstText(s *goquery.Selection) string {
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				return strings.TrimSpace(c.Data)
			}
		}
	}
	return ""
}

// textNodes returns every non-blank direct text child of every node in s.
func textNodes(s *goquery.Selection) []string {
	out := make([]string, 0, s.Length())
	s.Each(func(_ int, el *goquery.Selection) {
		el.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) != "#text" {
				return
			}
			if t := strings.TrimSpace(c.Text()); t != "" {
				out = append(out, t)
			}
		})
	})
	return out
}

func attrValues(s *goquery.Selection, name string) []string {
	out := make([]string, 0, s.Length())
	s.Each(func(_ int, el *goquery.Selection) {
		if v, ok := el.Attr(name); ok {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}
