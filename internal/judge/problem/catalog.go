package problem

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/collection"
	"go.uber.org/zap"
)

// Catalog resolves problem ids to judge-ready problems.
type Catalog interface {
	Get(ctx context.Context, id int64) (Problem, error)
}

// DirCatalog reads problems from <root>/<id>/info.json.
type DirCatalog struct {
	root  string
	cache *collection.Cache
	packs *PackSyncer
}

// CatalogOption customizes a DirCatalog.
type CatalogOption func(*DirCatalog)

// WithPackSyncer downloads missing problem directories from object storage.
func WithPackSyncer(syncer *PackSyncer) CatalogOption {
	return func(c *DirCatalog) {
		c.packs = syncer
	}
}

// NewDirCatalog creates a catalog rooted at root. A positive ttl keeps loaded
// problems in memory for that long.
func NewDirCatalog(root string, ttl time.Duration, opts ...CatalogOption) (*DirCatalog, error) {
	if root == "" {
		return nil, appErr.ValidationError("problem.dir", "required")
	}
	c := &DirCatalog{root: root}
	if ttl > 0 {
		cache, err := collection.NewCache(ttl, collection.WithName("problem-catalog"))
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get loads the problem. Missing problems yield ProblemNotFound.
func (c *DirCatalog) Get(ctx context.Context, id int64) (Problem, error) {
	if id <= 0 {
		return Problem{}, appErr.New(appErr.ProblemNotFound).WithMessagef("problem %d not found", id)
	}
	if c.cache == nil {
		return c.load(ctx, id)
	}
	val, err := c.cache.Take(strconv.FormatInt(id, 10), func() (any, error) {
		return c.load(ctx, id)
	})
	if err != nil {
		return Problem{}, err
	}
	return val.(Problem), nil
}

// Invalidate drops a cached problem so the next Get reloads it.
func (c *DirCatalog) Invalidate(id int64) {
	if c.cache != nil {
		c.cache.Del(strconv.FormatInt(id, 10))
	}
}

func (c *DirCatalog) load(ctx context.Context, id int64) (Problem, error) {
	dir := filepath.Join(c.root, strconv.FormatInt(id, 10))
	if c.packs != nil {
		if _, err := os.Stat(filepath.Join(dir, InfoFileName)); errors.Is(err, fs.ErrNotExist) {
			if err := c.packs.Sync(ctx, id, dir); err != nil {
				return Problem{}, err
			}
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, InfoFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Problem{}, appErr.New(appErr.ProblemNotFound).WithMessagef("problem %d not found", id)
		}
		return Problem{}, appErr.Wrapf(err, appErr.ProblemInvalid, "read problem %d info failed", id)
	}
	var p Problem
	if err := json.Unmarshal(data, &p); err != nil {
		return Problem{}, appErr.Wrapf(err, appErr.ProblemInvalid, "parse problem %d info failed", id)
	}
	if p.ID == 0 {
		p.ID = id
	}
	if p.ID != id {
		logger.Warn(ctx, "problem info id differs from directory",
			zap.Int64("dir_id", id), zap.Int64("info_id", p.ID))
		p.ID = id
	}
	p.Dir = dir
	if err := p.Validate(); err != nil {
		return Problem{}, err
	}
	logger.Debug(ctx, "problem loaded", zap.Int64("problem_id", id), zap.Int("testcases", p.Judge.TestCase))
	return p, nil
}
