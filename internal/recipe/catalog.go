package recipe

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultThreshold splits small from large procurements (IDR 300 million).
const DefaultThreshold = 300_000_000

var (
	// ErrNoBudget is returned when a template set is requested without a budget.
	ErrNoBudget = eris.New("recipe: budget could not be determined")
	// ErrNoTemplateSet is returned when no set matches the request.
	ErrNoTemplateSet = eris.New("recipe: no template set matches")
)

// TemplateSet is a group of documents generated together.
type TemplateSet struct {
	Name string `yaml:"name" json:"name"`
	// Keyword selects the set when found in the description (case-insensitive).
	Keyword string `yaml:"keyword" json:"keyword,omitempty"`
	// Large marks sets for budgets at or above the catalog threshold.
	Large bool `yaml:"large" json:"large"`
	// Default marks the fallback set for its side of the threshold.
	Default   bool     `yaml:"default" json:"default"`
	Templates []string `yaml:"templates" json:"templates"`
}

// Catalog lists the template sets and the budget threshold between them.
type Catalog struct {
	Root      string        `yaml:"root" json:"root"`
	Threshold float64       `yaml:"threshold" json:"threshold"`
	Sets      []TemplateSet `yaml:"sets" json:"sets"`
}

// LoadCatalog reads a YAML catalog. Relative template paths resolve against
// the catalog's root, which itself defaults to the catalog file's directory.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "recipe: read catalog %s", path)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(err, "recipe: parse catalog %s", path)
	}
	if c.Root == "" {
		c.Root = filepath.Dir(path)
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if len(c.Sets) == 0 {
		return nil, eris.Errorf("recipe: catalog %s has no template sets", path)
	}
	return &c, nil
}

// DefaultCatalog returns the built-in procurement and licence template sets.
func DefaultCatalog(root string) *Catalog {
	notaSVP := filepath.Join("Nota dinas izin prinsip(SVP)", "Nota dinas Izin Prinsip Pengadaan(SVP).pdf")
	notaBidang := filepath.Join("Nota dinas izin prinsip", "Nota dinas Izin Prinsip Pengadaan_D.bidang.pdf")
	rab := filepath.Join("RAB", "RAB", "RAB Pengadaan.pdf")
	return &Catalog{
		Root:      root,
		Threshold: DefaultThreshold,
		Sets: []TemplateSet{
			{
				Name:      "lisensi_large",
				Keyword:   "lisensi",
				Large:     true,
				Templates: []string{filepath.Join("RAB", "RAB Dir. Bidang", "RAB Lisensi.pdf"), filepath.Join("RAB", "RKS Dir. Bidang", "RKS Lisensi.pdf")},
			},
			{
				Name:    "pengadaan_large",
				Keyword: "pengadaan",
				Large:   true,
				Default: true,
				Templates: []string{
					filepath.Join("RAB", "RAB Dir. Bidang", "RAB Pengadaan.pdf"),
					filepath.Join("RAB", "RKS Dir. Bidang", "RKS Pengadaan.pdf"),
					filepath.Join("Review Pekerjaan", "Review Pengajuan Pekerjaan Pengadaan Barang.pdf"),
				},
			},
			{
				Name:      "lisensi_small",
				Keyword:   "lisensi",
				Templates: []string{notaSVP, notaBidang, rab, filepath.Join("RAB", "RKS Dir. Bidang", "RKS Lisensi.pdf")},
			},
			{
				Name:      "pengadaan_small",
				Keyword:   "pengadaan",
				Default:   true,
				Templates: []string{notaSVP, notaBidang, rab, filepath.Join("RAB", "RKS", "RKS Pengadaan.pdf")},
			},
		},
	}
}

// Select picks the template set for a budget and description. Sets on the
// budget's side of the threshold are tried in catalog order by keyword; when
// none matches, that side's default set is used.
func (c *Catalog) Select(budget *float64, description string) (*TemplateSet, error) {
	if budget == nil {
		return nil, ErrNoBudget
	}
	large := *budget >= c.Threshold
	text := strings.ToLower(description)

	var fallback *TemplateSet
	for i := range c.Sets {
		s := &c.Sets[i]
		if s.Large != large {
			continue
		}
		if s.Keyword != "" && strings.Contains(text, strings.ToLower(s.Keyword)) {
			return s, nil
		}
		if s.Default && fallback == nil {
			fallback = s
		}
	}
	if fallback == nil {
		return nil, eris.Wrapf(ErrNoTemplateSet, "budget %.0f", *budget)
	}
	return fallback, nil
}

// Find returns the set with the given name.
func (c *Catalog) Find(name string) (*TemplateSet, bool) {
	for i := range c.Sets {
		if c.Sets[i].Name == name {
			return &c.Sets[i], true
		}
	}
	return nil, false
}

// Paths resolves the set's templates against the catalog root.
func (c *Catalog) Paths(s *TemplateSet) []string {
	out := make([]string, len(s.Templates))
	for i, t := range s.Templates {
		if filepath.IsAbs(t) || c.Root == "" {
			out[i] = t
			continue
		}
		out[i] = filepath.Join(c.Root, t)
	}
	return out
}
