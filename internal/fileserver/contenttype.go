package fileserver

import "regexp"

type contentTypeRule struct {
	pattern *regexp.Regexp
	mime    string
}

// ContentTypeResolver maps a path to a MIME type via an ordered list of
// regex -> MIME rules, first match wins.
type ContentTypeResolver struct {
	rules []contentTypeRule
}

// NewContentTypeResolver builds an empty resolver.
func NewContentTypeResolver() *ContentTypeResolver {
	return &ContentTypeResolver{}
}

// Add registers a pattern -> MIME rule.
func (r *ContentTypeResolver) Add(pattern *regexp.Regexp, mime string) {
	r.rules = append(r.rules, contentTypeRule{pattern: pattern, mime: mime})
}

// Resolve returns the MIME type for path, or "" if no rule matches.
func (r *ContentTypeResolver) Resolve(path string) string {
	for _, rule := range r.rules {
		if rule.pattern.MatchString(path) {
			return rule.mime
		}
	}
	return ""
}

// DefaultContentTypeResolver builds the resolver for the content-type
// map in the external interface section: html/css/js/svg/png/ico.
func DefaultContentTypeResolver() *ContentTypeResolver {
	r := NewContentTypeResolver()
	r.Add(regexp.MustCompile(`\.html$`), "text/html; charset=utf-8")
	r.Add(regexp.MustCompile(`\.css$`), "text/css; charset=utf-8")
	r.Add(regexp.MustCompile(`\.js$`), "application/javascript; charset=utf-8")
	r.Add(regexp.MustCompile(`\.svg$`), "image/svg+xml; charset=utf-8")
	r.Add(regexp.MustCompile(`\.png$`), "image/png")
	r.Add(regexp.MustCompile(`\.ico$`), "image/vnd.microsoft.icon")
	return r
}
