package market

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/i474232898/agri-assist/internal/apperr"
	"github.com/i474232898/agri-assist/internal/cache"
)

// Loader reads datasets from a directory and keeps each parsed file for the
// life of the process.
type Loader struct {
	dir   string
	cache *cache.TTL[*Dataset]
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string, obs cache.Observer) *Loader {
	return &Loader{
		dir:   dir,
		cache: cache.New[*Dataset]("market.dataset", 0, obs),
	}
}

// Load returns the dataset stored in file name under the loader's directory.
// Failed loads are not cached.
func (l *Loader) Load(name string) (*Dataset, error) {
	name = filepath.Base(filepath.Clean(name))
	return l.cache.GetOrCompute(cache.Key("market.load", name), func() (*Dataset, error) {
		return l.read(name)
	})
}

func (l *Loader) read(name string) (*Dataset, error) {
	path := filepath.Join(l.dir, name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotReady("market data "+name, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	ds.Source = name
	log.Printf("INFO: loaded market data %s: %d records, %d rows skipped", name, len(ds.Records), ds.Skipped)
	return ds, nil
}
