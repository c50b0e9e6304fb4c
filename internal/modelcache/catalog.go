package modelcache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownModel is returned when an identifier matches no catalog entry.
var ErrUnknownModel = errors.New("unknown model")

// Entry is one downloadable ggml weight file.
type Entry struct {
	Name      string
	FileName  string
	SizeLabel string
	Tier      string
}

// Tiers map the UI's quality tiers to catalog names.
var Tiers = map[string]string{
	"fast":     "tiny",
	"balanced": "base",
	"accurate": "small",
}

var entries = []Entry{
	{Name: "tiny", SizeLabel: "75 MiB", Tier: "fast"},
	{Name: "tiny.en", SizeLabel: "75 MiB"},
	{Name: "base", SizeLabel: "142 MiB", Tier: "balanced"},
	{Name: "base.en", SizeLabel: "142 MiB"},
	{Name: "small", SizeLabel: "466 MiB", Tier: "accurate"},
	{Name: "small.en", SizeLabel: "466 MiB"},
	{Name: "medium", SizeLabel: "1.5 GiB"},
	{Name: "medium.en", SizeLabel: "1.5 GiB"},
	{Name: "large-v3", SizeLabel: "2.9 GiB"},
	{Name: "large-v3-turbo", SizeLabel: "1.5 GiB"},
}

// idPrefixes are stripped from hub-style identifiers.
var idPrefixes = []string{"xenova/whisper-", "openai/whisper-", "ggml-"}

// Catalog resolves identifiers and builds download URLs.
type Catalog struct {
	baseURL string
	byName  map[string]Entry
}

// NewCatalog builds a catalog serving files from baseURL.
func NewCatalog(baseURL string) *Catalog {
	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		e.FileName = "ggml-" + e.Name + ".bin"
		byName[e.Name] = e
	}
	return &Catalog{baseURL: strings.TrimRight(baseURL, "/"), byName: byName}
}

// Entries lists the catalog sorted by name.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.byName))
	for _, e := range c.byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve maps id to a catalog entry.
func (c *Catalog) Resolve(id string) (Entry, error) {
	name := CanonicalID(id)
	if e, ok := c.byName[name]; ok {
		return e, nil
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
}

// URL is the download location of e.
func (c *Catalog) URL(e Entry) string {
	return c.baseURL + "/" + e.FileName
}

// CanonicalID reduces any accepted spelling of a model identifier to its
// catalog name. Unknown identifiers are returned trimmed and lowercased.
func CanonicalID(id string) string {
	name := strings.ToLower(strings.TrimSpace(id))
	if tier, ok := Tiers[name]; ok {
		return tier
	}
	for _, prefix := range idPrefixes {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}
	return strings.TrimSuffix(name, ".bin")
}
