package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"shopbot/internal/keylock"
	"shopbot/internal/store"
)

var (
	ErrNotFound       = errors.New("product not found")
	ErrInvalidTitle   = errors.New("invalid product title")
	ErrInvalidPrice   = errors.New("invalid product price")
	ErrDuplicateTitle = errors.New("product title already exists")
)

const (
	counterKey  = "products/count"
	idPrefix    = "products/id/"
	titlePrefix = "products/title/"
)

// TitlePolicy decides what Create does with a title that is already indexed.
type TitlePolicy string

const (
	// TitleReject fails Create with ErrDuplicateTitle.
	TitleReject TitlePolicy = "reject"
	// TitleOverwrite repoints the title at the new product. The older
	// product stays reachable by id only.
	TitleOverwrite TitlePolicy = "overwrite"
)

// ParseTitlePolicy maps a config value onto a policy, defaulting to reject.
func ParseTitlePolicy(v string) (TitlePolicy, error) {
	switch TitlePolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", TitleReject:
		return TitleReject, nil
	case TitleOverwrite:
		return TitleOverwrite, nil
	default:
		return "", fmt.Errorf("unknown duplicate title policy %q", v)
	}
}

// Product is a sellable catalog entry.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	Price       int64     `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
}

// Config tunes catalog behaviour.
type Config struct {
	DuplicateTitles TitlePolicy
}

// Catalog assigns product ids and keeps the title index in step with them.
type Catalog struct {
	store  store.Store
	locks  *keylock.Locker
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// New creates a Catalog.
func New(s store.Store, locks *keylock.Locker, logger *slog.Logger, cfg Config) *Catalog {
	if cfg.DuplicateTitles == "" {
		cfg.DuplicateTitles = TitleReject
	}
	return &Catalog{
		store:  s,
		locks:  locks,
		logger: logger.With("component", "catalog"),
		cfg:    cfg,
		now:    time.Now,
	}
}

func idKey(id int64) string {
	return idPrefix + strconv.FormatInt(id, 10)
}

func titleKey(title string) string {
	return titlePrefix + title
}

// Create stores a new product under counter+1. The product record, its title
// index entry and the advanced counter commit together.
func (c *Catalog) Create(ctx context.Context, title, description, link string, price int64) (Product, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Product{}, ErrInvalidTitle
	}
	if price <= 0 {
		return Product{}, ErrInvalidPrice
	}

	unlock := c.locks.Lock(counterKey)
	defer unlock()

	if c.cfg.DuplicateTitles == TitleReject {
		existing, err := c.getByTitle(ctx, title)
		switch {
		case err == nil:
			return Product{}, fmt.Errorf("%w: %q is product %d", ErrDuplicateTitle, title, existing.ID)
		case !errors.Is(err, ErrNotFound):
			return Product{}, err
		}
	}

	count, err := c.count(ctx)
	if err != nil {
		return Product{}, err
	}
	product := Product{
		ID:          count + 1,
		Title:       title,
		Description: description,
		Link:        link,
		Price:       price,
		CreatedAt:   c.now().UTC(),
	}
	data, err := json.Marshal(product)
	if err != nil {
		return Product{}, fmt.Errorf("encode product: %w", err)
	}

	err = c.store.Apply(ctx, []store.Op{
		store.Put(idKey(product.ID), data),
		store.Put(titleKey(title), store.Int(product.ID)),
		store.Put(counterKey, store.Int(product.ID)),
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	c.logger.Info("product created", "product_id", product.ID, "title", title, "price", price)
	return product, nil
}

// Get loads a product by id.
func (c *Catalog) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrNotFound
	}
	raw, err := c.store.Read(ctx, idKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	var product Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return Product{}, fmt.Errorf("decode product %d: %w", id, err)
	}
	return product, nil
}

// GetByTitle resolves title through the index. An index entry that points at
// a deleted or retitled product reports ErrNotFound.
func (c *Catalog) GetByTitle(ctx context.Context, title string) (Product, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Product{}, ErrNotFound
	}
	return c.getByTitle(ctx, title)
}

// TitleAvailable reports whether Create would accept title under the
// configured duplicate policy. Create still checks again under the lock.
func (c *Catalog) TitleAvailable(ctx context.Context, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, nil
	}
	if c.cfg.DuplicateTitles != TitleReject {
		return true, nil
	}
	_, err := c.getByTitle(ctx, title)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrNotFound):
		return true, nil
	default:
		return false, err
	}
}

func (c *Catalog) getByTitle(ctx context.Context, title string) (Product, error) {
	id, ok, err := store.ReadInt(ctx, c.store, titleKey(title))
	if err != nil {
		return Product{}, fmt.Errorf("lookup title: %w", err)
	}
	if !ok {
		return Product{}, ErrNotFound
	}
	product, err := c.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if product.Title != title {
		return Product{}, ErrNotFound
	}
	return product, nil
}

// Delete removes the product and, when it still owns it, its title index
// entry. It reports false for an unknown id. The counter never goes back.
func (c *Catalog) Delete(ctx context.Context, id int64) (bool, error) {
	unlock := c.locks.Lock(counterKey)
	defer unlock()

	product, err := c.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	ops := []store.Op{store.Del(idKey(id))}
	indexed, ok, err := store.ReadInt(ctx, c.store, titleKey(product.Title))
	if err != nil {
		return false, fmt.Errorf("lookup title: %w", err)
	}
	if ok && indexed == id {
		ops = append(ops, store.Del(titleKey(product.Title)))
	}
	if err := c.store.Apply(ctx, ops); err != nil {
		return false, fmt.Errorf("delete product %d: %w", id, err)
	}
	c.logger.Info("product deleted", "product_id", id, "title", product.Title)
	return true, nil
}

// Count returns the highest id ever assigned.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	return c.count(ctx)
}

func (c *Catalog) count(ctx context.Context) (int64, error) {
	n, _, err := store.ReadInt(ctx, c.store, counterKey)
	if err != nil {
		return 0, fmt.Errorf("read product counter: %w", err)
	}
	return n, nil
}

// List returns live products in id order, skipping deleted ids.
func (c *Catalog) List(ctx context.Context) ([]Product, error) {
	count, err := c.count(ctx)
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0, count)
	for id := int64(1); id <= count; id++ {
		product, err := c.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// ReconcileReport summarises a Reconcile pass.
type ReconcileReport struct {
	StaleTitles   []string `json:"stale_titles"`
	CounterRaised bool     `json:"counter_raised"`
	Counter       int64    `json:"counter"`
}

// Reconcile drops title index entries that no longer resolve and raises the
// counter if a product record sits above it.
func (c *Catalog) Reconcile(ctx context.Context) (ReconcileReport, error) {
	unlock := c.locks.Lock(counterKey)
	defer unlock()

	var report ReconcileReport
	titleKeys, err := c.store.Scan(ctx, titlePrefix)
	if err != nil {
		return report, fmt.Errorf("scan titles: %w", err)
	}
	var ops []store.Op
	for _, key := range titleKeys {
		title := strings.TrimPrefix(key, titlePrefix)
		_, err := c.getByTitle(ctx, title)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrNotFound):
			ops = append(ops, store.Del(key))
			report.StaleTitles = append(report.StaleTitles, title)
		default:
			return report, err
		}
	}

	count, err := c.count(ctx)
	if err != nil {
		return report, err
	}
	idKeys, err := c.store.Scan(ctx, idPrefix)
	if err != nil {
		return report, fmt.Errorf("scan products: %w", err)
	}
	highest := count
	for _, key := range idKeys {
		id, err := strconv.ParseInt(strings.TrimPrefix(key, idPrefix), 10, 64)
		if err != nil {
			c.logger.Warn("skipping malformed product key", "key", key)
			continue
		}
		if id > highest {
			highest = id
		}
	}
	if highest > count {
		ops = append(ops, store.Put(counterKey, store.Int(highest)))
		report.CounterRaised = true
	}
	report.Counter = highest

	if len(ops) == 0 {
		return report, nil
	}
	if err := c.store.Apply(ctx, ops); err != nil {
		return report, fmt.Errorf("apply reconcile: %w", err)
	}
	c.logger.Info("catalog reconciled", "stale_titles", len(report.StaleTitles), "counter", report.Counter)
	return report, nil
}
