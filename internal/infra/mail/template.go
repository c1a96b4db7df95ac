// Package mail renders and delivers password recovery emails.
package mail

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

const (
	UsernameElementID = "username-to-recovering-password"
	CodeElementID     = "password-recovery-code"
)

//go:embed templates/recovery_default.html
var defaultTemplate string

// RenderRecoveryEmail fills the username and code placeholders of tmpl. A blank template, or one
// missing either placeholder, falls back to the embedded default.
func RenderRecoveryEmail(tmpl, username, code string) (string, error) {
	if strings.TrimSpace(tmpl) != "" {
		if out, ok, err := fill(tmpl, username, code); err != nil || ok {
			return out, err
		}
	}

	out, ok, err := fill(defaultTemplate, username, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("default template lacks recovery placeholders")
	}
	return out, nil
}

func fill(tmpl, username, code string) (string, bool, error) {
	doc, err := html.Parse(strings.NewReader(tmpl))
	if err != nil {
		return "", false, nil
	}

	userNode := findByID(doc, UsernameElementID)
	codeNode := findByID(doc, CodeElementID)
	if userNode == nil || codeNode == nil {
		return "", false, nil
	}

	replaceText(userNode, username)
	replaceText(codeNode, code)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return "", false, fmt.Errorf("render recovery email: %w", err)
	}
	return b.String(), true, nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if attr.Key == "id" && attr.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func replaceText(n *html.Node, text string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
