package services

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/models"
)

// CatalogOptions selects and orders the files of a directory.
type CatalogOptions struct {
	Recursive       bool
	Include         []string
	Exclude         []string
	Sort            string
	CustomOrderFile string
}

// CatalogOptionsFromConfig copies the catalog section of cfg.
func CatalogOptionsFromConfig(cfg config.CatalogConfig) CatalogOptions {
	return CatalogOptions{
		Recursive:       cfg.Recursive,
		Include:         cfg.Include,
		Exclude:         cfg.Exclude,
		Sort:            cfg.Sort,
		CustomOrderFile: cfg.CustomOrderFile,
	}
}

// Catalog lists the supported documents of a directory in a deterministic
// order. It never modifies the files it finds.
type Catalog struct {
	dir      string
	opts     CatalogOptions
	logger   *slog.Logger
	warnings []string
}

func NewCatalog(dir string, opts CatalogOptions) *Catalog {
	return &Catalog{dir: dir, opts: opts, logger: slog.Default()}
}

// Warnings returns the non-fatal problems of the last scan.
func (c *Catalog) Warnings() []string { return c.warnings }

// All yields the documents lazily. Each iteration rescans the directory.
func (c *Catalog) All() iter.Seq2[*models.Document, error] {
	return func(yield func(*models.Document, error) bool) {
		docs, err := c.Scan()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Scan returns the matching documents with Index set to their position.
func (c *Catalog) Scan() ([]*models.Document, error) {
	c.warnings = nil
	if err := checkDirectory(c.dir); err != nil {
		return nil, err
	}

	paths, err := c.list()
	if err != nil {
		return nil, err
	}

	docs := make([]*models.Document, 0, len(paths))
	for _, p := range paths {
		doc, err := models.NewDocument(p)
		if err != nil {
			// Vanished between listing and stat.
			c.warn(fmt.Sprintf("skipping %s: %v", p, err))
			continue
		}
		docs = append(docs, doc)
	}

	c.order(docs)
	for i, d := range docs {
		d.Index = i
	}
	return docs, nil
}

func checkDirectory(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &models.DirectoryError{Path: dir, Reason: "does not exist", Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &models.DirectoryError{Path: dir, Reason: "permission denied", Err: err}
	case err != nil:
		return &models.DirectoryError{Path: dir, Reason: "cannot be read", Err: err}
	case !info.IsDir():
		return &models.DirectoryError{Path: dir, Reason: "not a directory"}
	}
	return nil
}

func (c *Catalog) list() ([]string, error) {
	var paths []string
	if !c.opts.Recursive {
		entries, err := os.ReadDir(c.dir)
		if err != nil {
			return nil, dirReadError(c.dir, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && c.matches(e.Name()) {
				paths = append(paths, filepath.Join(c.dir, e.Name()))
			}
		}
		return paths, nil
	}

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.dir {
				return err
			}
			c.warn(fmt.Sprintf("skipping %s: %v", path, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && c.matches(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, dirReadError(c.dir, err)
	}
	return paths, nil
}

func dirReadError(dir string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return &models.DirectoryError{Path: dir, Reason: "permission denied", Err: err}
	}
	return &models.DirectoryError{Path: dir, Reason: "cannot be read", Err: err}
}

// matches applies the extension filter and the case-insensitive name
// patterns. Exclusion wins over inclusion; no include patterns means every
// supported file.
func (c *Catalog) matches(name string) bool {
	if models.FormatForPath(name) == models.FormatUnsupported {
		return false
	}
	lower := strings.ToLower(name)
	for _, p := range c.opts.Exclude {
		if ok, _ := filepath.Match(strings.ToLower(p), lower); ok {
			return false
		}
	}
	if len(c.opts.Include) == 0 {
		return true
	}
	for _, p := range c.opts.Include {
		if ok, _ := filepath.Match(strings.ToLower(p), lower); ok {
			return true
		}
	}
	return false
}

func (c *Catalog) order(docs []*models.Document) {
	byName := func(a, b *models.Document) bool {
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Path < b.Path
	}

	switch c.opts.Sort {
	case config.SortDate:
		sort.SliceStable(docs, func(i, j int) bool {
			if !docs[i].ModifiedAt.Equal(docs[j].ModifiedAt) {
				return docs[i].ModifiedAt.After(docs[j].ModifiedAt)
			}
			return byName(docs[i], docs[j])
		})
	case config.SortSize:
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].SizeBytes != docs[j].SizeBytes {
				return docs[i].SizeBytes < docs[j].SizeBytes
			}
			return byName(docs[i], docs[j])
		})
	case config.SortCustom:
		ranks, err := loadCustomOrder(c.opts.CustomOrderFile)
		if err != nil {
			c.warn(fmt.Sprintf("could not use custom order file, falling back to name order: %v", err))
			sort.SliceStable(docs, func(i, j int) bool { return byName(docs[i], docs[j]) })
			return
		}
		rank := func(d *models.Document) int {
			if r, ok := ranks[d.Name]; ok {
				return r
			}
			return len(ranks)
		}
		sort.SliceStable(docs, func(i, j int) bool {
			ri, rj := rank(docs[i]), rank(docs[j])
			if ri != rj {
				return ri < rj
			}
			return byName(docs[i], docs[j])
		})
	default:
		sort.SliceStable(docs, func(i, j int) bool { return byName(docs[i], docs[j]) })
	}
}

// loadCustomOrder reads one file name per line; blank lines are ignored and
// the first occurrence of a name wins.
func loadCustomOrder(path string) (map[string]int, error) {
	if path == "" {
		return nil, errors.New("no custom order file configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ranks := make(map[string]int)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		if _, dup := ranks[name]; !dup {
			ranks[name] = len(ranks)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ranks, nil
}

func (c *Catalog) warn(msg string) {
	c.logger.Warn("Catalog warning.", "directory", c.dir, "detail", msg)
	c.warnings = append(c.warnings, msg)
}
