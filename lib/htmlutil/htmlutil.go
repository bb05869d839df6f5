package htmlutil

import (
	"bytes"
	"net/url"
	"strings"
	"unicode"

	"sahibinden-scraper/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

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
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText returns the printable text of a selection with whitespace collapsed.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	return textutil.CollapseSpace(removeNonPrintable(buffer.String()))
}

// Resolve resolves href relative to base, an empty or unparsable href returns "".
func Resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	link, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return link.String()
	}
	return base.ResolveReference(link).String()
}

// FormValues collects the named input values of a form, the way a browser
// would submit it without user interaction.
func FormValues(form *goquery.Selection) map[string]string {
	values := map[string]string{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		kind := strings.ToLower(input.AttrOr("type", "text"))
		if kind == "checkbox" || kind == "radio" {
			if _, checked := input.Attr("checked"); !checked {
				return
			}
		}
		if kind == "submit" || kind == "button" {
			return
		}
		values[name] = input.AttrOr("value", "")
	})
	return values
}
