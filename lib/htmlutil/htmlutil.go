package htmlutil

import (
	"bytes"
	"strings"
	"unicode"

	"ppbverify/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parse parses a fragment or a full document, the portal returns fragments.
func Parse(markup string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(markup))
}

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

func removeNonPrintable(s string) string {
	out := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			out.WriteRune(c)
		}
	}
	return out.String()
}

// CleanText is the printable text of the first node in sel with whitespace collapsed.
func CleanText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	return textutil.Collapse(removeNonPrintable(GetText(sel.Nodes[0])))
}

// FirstAttr returns the attribute of the first node in sel that has a non-empty value for it.
func FirstAttr(sel *goquery.Selection, attr string) (string, bool) {
	for _, n := range sel.Nodes {
		for _, a := range n.Attr {
			if a.Key == attr && strings.TrimSpace(a.Val) != "" {
				return strings.TrimSpace(a.Val), true
			}
		}
	}
	return "", false
}
