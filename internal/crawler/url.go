package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PageURL builds the listing URL for a page number. Page 1 (and below) maps to the
// canonical base URL with no page parameter.
func PageURL(source Source, page int) (string, error) {
	u, err := url.Parse(source.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if page <= 1 || source.PageParam == "" {
		return u.String(), nil
	}
	q := u.Query()
	q.Set(source.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveURL makes href absolute against origin and strips any fragment.
// Absolute hrefs are returned unchanged apart from the fragment.
func ResolveURL(origin, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	if !ref.IsAbs() {
		base, err := url.Parse(origin)
		if err != nil {
			return "", fmt.Errorf("parse origin: %w", err)
		}
		ref = base.ResolveReference(ref)
	}
	ref.Fragment = ""
	return ref.String(), nil
}
