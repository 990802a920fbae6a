package handlers

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	titleMin    = 3
	titleMax    = 200
	contentMin  = 10
	contentMax  = 50000
	commentMin  = 1
	commentMax  = 5000
	questionMax = 2000
	maxFileURLs = 10
)

type fieldErrors map[string]string

// checkLength trims s, records a problem under field when its rune count
// falls outside [min, max], and returns the trimmed value.
func (fe fieldErrors) checkLength(field, s string, min, max int) string {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	switch {
	case n == 0:
		fe[field] = "is required"
	case n < min:
		fe[field] = fmt.Sprintf("must be at least %d characters", min)
	case n > max:
		fe[field] = fmt.Sprintf("must be at most %d characters", max)
	}
	return s
}

func (fe fieldErrors) checkFileURLs(urls []string) []string {
	if len(urls) > maxFileURLs {
		fe["fileUrls"] = fmt.Sprintf("must contain at most %d entries", maxFileURLs)
		return nil
	}
	out := make([]string, 0, len(urls))
	for i, raw := range urls {
		raw = strings.TrimSpace(raw)
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fe["fileUrls"] = fmt.Sprintf("entry %d is not an http(s) URL", i)
			return nil
		}
		out = append(out, raw)
	}
	return out
}
