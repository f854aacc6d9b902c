package login

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth0-login/internal/errors"
	"golang.org/x/net/html"
)

// FormInput is a named input of an HTML form.
type FormInput struct {
	Name  string
	Value string
}

// Form is the first form of a page: its action and its named inputs in
// document order, with HTML entities already decoded.
type Form struct {
	Action string
	Inputs []FormInput
}

// ParseForm extracts the first form of an HTML document. A page without a
// form, a form without an action and a form without named inputs are all
// parse errors.
func ParseForm(r io.Reader) (*Form, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrParse, "html.Parse: %v", err)
	}

	forms := getElementsByTagName(root, "form")
	if len(forms) == 0 {
		return nil, errors.Wrapf(errors.ErrParse, "page does not contain a form")
	}
	form := forms[0]

	action, ok := getAttr(form, "action")
	if !ok || strings.TrimSpace(action) == "" {
		return nil, errors.Wrapf(errors.ErrParse, "form has no action")
	}

	result := &Form{Action: strings.TrimSpace(action)}
	for _, input := range getElementsByTagName(form, "input") {
		name, ok := getAttr(input, "name")
		if !ok || name == "" {
			continue
		}
		value, _ := getAttr(input, "value")
		result.Inputs = append(result.Inputs, FormInput{Name: name, Value: value})
	}
	if len(result.Inputs) == 0 {
		return nil, errors.Wrapf(errors.ErrParse, "form posting to %s has no inputs", result.Action)
	}

	return result, nil
}

// ActionURL resolves the action against the URL of the page the form came from.
func (f *Form) ActionURL(page *url.URL) (*url.URL, error) {
	action, err := url.Parse(f.Action)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrParse, "invalid form action %q: %v", f.Action, err)
	}
	if page == nil {
		if !action.IsAbs() {
			return nil, errors.Wrapf(errors.ErrParse, "relative form action %q without page url", f.Action)
		}
		return action, nil
	}
	return page.ResolveReference(action), nil
}

// Encode renders the inputs as application/x-www-form-urlencoded, keeping
// their document order.
func (f *Form) Encode() string {
	pairs := make([]string, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		pairs = append(pairs, fmt.Sprintf("%s=%s", url.QueryEscape(in.Name), url.QueryEscape(in.Value)))
	}
	return strings.Join(pairs, "&")
}

func getElementsByTagName(root *html.Node, tagName string) []*html.Node {
	var elements []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tagName {
			elements = append(elements, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return elements
}

func getAttr(element *html.Node, name string) (string, bool) {
	for _, attr := range element.Attr {
		if attr.Namespace == "" && attr.Key == name {
			return attr.Val, true
		}
	}
	return "", false
}
