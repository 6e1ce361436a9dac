package ingest

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// htmlDocument is readable content plus absolute outbound links, grounded on
// the teacher's internal/extract.FromHTML, extended to also collect anchor
// hrefs for BFS crawling (spec §4.2 "HTTP ingestor following links").
type htmlDocument struct {
	Title string
	Text  string
	Links []string
}

func parseHTML(base *url.URL, input []byte) htmlDocument {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return htmlDocument{}
	}

	title := strings.TrimSpace(findTitle(node))
	content := findFirst(node, "main")
	if content == nil {
		content = findFirst(node, "article")
	}
	if content == nil {
		content = findFirst(node, "body")
	}
	var b strings.Builder
	if content != nil {
		collectText(&b, content, false)
	}
	text := normalizeWhitespace(b.String())

	var links []string
	collectLinks(node, base, &links)
	return htmlDocument{Title: title, Text: text, Links: links}
}

func findTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		return ""
	}
	t := findFirst(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		if isBoilerplateContainer(n) {
			return
		}
		name := strings.ToLower(n.Data)
		switch name {
		case "script", "style", "noscript", "nav", "footer", "aside", "iframe":
			return
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol":
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n\n")
		}
	}
}

func isBoilerplateContainer(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" && attr.Key != "id" {
			continue
		}
		v := strings.ToLower(attr.Val)
		for _, marker := range []string{"cookie", "consent", "gdpr", "banner-ad", "newsletter-signup"} {
			if strings.Contains(v, marker) {
				return true
			}
		}
	}
	return false
}

func collectLinks(n *html.Node, base *url.URL, out *[]string) {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "a") {
		for _, attr := range n.Attr {
			if attr.Key != "href" {
				continue
			}
			href := strings.TrimSpace(attr.Val)
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
				continue
			}
			u, err := url.Parse(href)
			if err != nil {
				continue
			}
			resolved := u
			if base != nil {
				resolved = base.ResolveReference(u)
			}
			if resolved.Scheme != "http" && resolved.Scheme != "https" {
				continue
			}
			resolved.Fragment = ""
			*out = append(*out, resolved.String())
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLinks(c, base, out)
	}
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = collapseSpaces(strings.TrimSpace(line))
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func collapseSpaces(s string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if prevSpace {
				continue
			}
			prevSpace = true
			b.WriteRune(' ')
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
