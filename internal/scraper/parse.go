// Package scraper fetches job board search pages and turns them into job
// cards. Plain HTTP is tried first; a headless browser takes over when the
// board blocks the request.
package scraper

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"leadscout/internal/lead"
)

// SearchURL builds the search results URL for a role, location and 1-based page.
func SearchURL(base, role, location string, page int) string {
	q := url.Values{}
	q.Set("keywords", role)
	q.Set("location", location)
	q.Set("page", fmt.Sprint(page))
	return strings.TrimRight(base, "/") + "/jobs?" + encodeOrdered(q, "keywords", "location", "page")
}

// encodeOrdered keeps the parameter order stable for logs and tests.
func encodeOrdered(v url.Values, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v.Get(k)))
	}
	return strings.Join(parts, "&")
}

// ParseJobCards extracts job cards from a search results page. Every anchor
// whose href points at a job ad becomes a card; anchors without any title
// text are dropped and repeated URLs keep their first occurrence.
func ParseJobCards(base string, r io.Reader) ([]lead.Job, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var jobs []lead.Job
	seen := make(map[string]bool)

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if job, ok := jobFromAnchor(baseURL, n); ok && !seen[job.AdURL] {
				seen[job.AdURL] = true
				jobs = append(jobs, job)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return jobs, nil
}

func jobFromAnchor(base *url.URL, n *html.Node) (lead.Job, bool) {
	href, ok := attr(n, "href")
	if !ok || (!strings.Contains(href, "/job/") && !strings.Contains(href, "/jobs/")) {
		return lead.Job{}, false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return lead.Job{}, false
	}

	title := collapseSpace(textContent(n))
	if title == "" {
		label, _ := attr(n, "aria-label")
		title = collapseSpace(label)
	}
	if title == "" {
		return lead.Job{}, false
	}
	return lead.Job{AdURL: base.ResolveReference(ref).String(), SourceSubject: title}, true
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
