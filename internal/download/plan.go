package download

import (
	"strings"

	"github.com/derickschaefer/filings/internal/model"
)

// namePlaceholder is replaced by the stem of the file name in a
// StemPattern.
const namePlaceholder = "/name/"

// Target tells where files of one kind are saved. Filename replaces the
// name taken from the URL; StemPattern rewrites its stem, e.g.
// "/name/_downloaded" saves report.zip as report_downloaded.zip.
type Target struct {
	Dir         string
	StemPattern string
	Filename    string
}

// Validate checks the stem pattern.
func (t Target) Validate() error {
	if t.StemPattern != "" && !strings.Contains(t.StemPattern, namePlaceholder) {
		return &model.ConfigError{Field: "stem pattern", Value: t.StemPattern, Reason: "placeholder " + namePlaceholder + " missing"}
	}
	return nil
}

// Naming holds the download targets: Default for every kind without an
// entry in PerKind.
type Naming struct {
	Default Target
	PerKind map[model.FileKind]Target
}

// For returns the target of kind.
func (n Naming) For(kind model.FileKind) Target {
	if t, ok := n.PerKind[kind]; ok {
		return t
	}
	return n.Default
}

// Validate checks every target.
func (n Naming) Validate() error {
	if err := n.Default.Validate(); err != nil {
		return err
	}
	for _, t := range n.PerKind {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Item is one (filing, file kind) pair to download.
type Item struct {
	Filing      *model.Filing
	Kind        model.FileKind
	URL         string
	SHA256      string // expected content hash, "" when unknown
	Dir         string
	StemPattern string
	Filename    string
}

// Plan builds the download items for filings and kinds in input order,
// filing by filing. Each (filing, kind) pair appears once. A filing
// without a URL for a kind still gets an item; it fails with
// ErrFileNotAvailable when run.
func Plan(filings []*model.Filing, kinds []model.FileKind, naming Naming) ([]Item, error) {
	if err := naming.Validate(); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, &model.ConfigError{Field: "file kinds", Reason: "at least one of json, package or xhtml required"}
	}
	for _, k := range kinds {
		if _, err := model.ParseFileKind(string(k)); err != nil {
			return nil, err
		}
		if naming.For(k).Filename != "" && len(filings) > 1 {
			return nil, &model.ConfigError{Field: "filename", Value: naming.For(k).Filename, Reason: "an explicit filename needs a single filing"}
		}
	}

	type pair struct {
		id   string
		kind model.FileKind
	}
	seen := make(map[pair]bool)
	var items []Item
	for _, f := range filings {
		for _, k := range kinds {
			p := pair{f.APIID, k}
			if seen[p] {
				continue
			}
			seen[p] = true
			t := naming.For(k)
			items = append(items, Item{
				Filing:      f,
				Kind:        k,
				URL:         f.DownloadURL(k),
				SHA256:      f.ExpectedSHA256(k),
				Dir:         t.Dir,
				StemPattern: t.StemPattern,
				Filename:    t.Filename,
			})
		}
	}
	return items, nil
}
