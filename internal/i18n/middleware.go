package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware picks the response language for every request: the lang query
// parameter wins, then Accept-Language, then lang.
func Middleware(lang string) func(http.Handler) http.Handler {
	supported := Languages()
	matcher := language.NewMatcher(supported)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			picked := negotiate(matcher, supported, r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
			loc := NewLocalizer(picked, lang)
			w.Header().Set("Content-Language", firstNonEmpty(picked, lang))
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}

// negotiate returns the base language of the best supported match, or ""
// when neither preference matches a locale.
func negotiate(m language.Matcher, supported []language.Tag, query, header string) string {
	var prefs []language.Tag
	if query != "" {
		if t, err := language.Parse(query); err == nil {
			prefs = append(prefs, t)
		}
	}
	if tags, _, err := language.ParseAcceptLanguage(header); err == nil {
		prefs = append(prefs, tags...)
	}
	if len(prefs) == 0 || len(supported) == 0 {
		return ""
	}
	_, idx, conf := m.Match(prefs...)
	if conf == language.No {
		return ""
	}
	base, _ := supported[idx].Base()
	return base.String()
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
