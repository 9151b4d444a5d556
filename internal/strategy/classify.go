package strategy

import (
	"net/url"
	"path"
	"strings"
)

// Class is the resource classification driving strategy selection.
type Class string

const (
	ClassDocument Class = "document" // HTML documents: network-first, UI must not stick on stale markup
	ClassStatic   Class = "static"   // enumerated assets: stale-while-revalidate
	ClassAPI      Class = "api"      // weather/geocoding calls: network-first
	ClassOther    Class = "other"    // everything else: stale-while-revalidate, general bucket
)

// staticExtensions enumerates the asset types the installable app ships.
var staticExtensions = map[string]struct{}{
	".js":          {},
	".mjs":         {},
	".css":         {},
	".png":         {},
	".jpg":         {},
	".jpeg":        {},
	".svg":         {},
	".ico":         {},
	".webp":        {},
	".woff":        {},
	".woff2":       {},
	".webmanifest": {},
}

// Classifier assigns a Class to request URLs. API hosts are matched exactly
// against the configured weather/geocoding endpoints.
type Classifier struct {
	apiHosts map[string]struct{}
}

// NewClassifier builds a Classifier treating the given base URLs as API
// endpoints. Unparseable bases are ignored.
func NewClassifier(apiBases ...string) *Classifier {
	hosts := make(map[string]struct{}, len(apiBases))
	for _, base := range apiBases {
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			hosts[u.Host] = struct{}{}
		}
	}
	return &Classifier{apiHosts: hosts}
}

// Classify maps a raw URL to its resource class.
func (c *Classifier) Classify(rawURL string) Class {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ClassOther
	}
	if _, ok := c.apiHosts[u.Host]; ok {
		return ClassAPI
	}

	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return ClassDocument
	}
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".html", ".htm":
		return ClassDocument
	case "":
		// Extensionless paths are navigations (e.g. /forecast).
		return ClassDocument
	}
	if strings.HasSuffix(p, "/manifest.json") {
		return ClassStatic
	}
	if _, ok := staticExtensions[ext]; ok {
		return ClassStatic
	}
	return ClassOther
}
