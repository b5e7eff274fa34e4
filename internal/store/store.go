// Package store persists items, their images and their analysis history in
// SQLite. Analyses are append-only: corrections are new rows, and every read
// path resolves "current" as the latest row for the item.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Item lifecycle states.
type ItemStatus string

const (
	// ItemStatusPending means uploaded with analysis in flight.
	ItemStatusPending ItemStatus = "pending"
	// ItemStatusActive means analysis complete and visible in listings.
	ItemStatusActive ItemStatus = "active"
	// ItemStatusSold means a trade has closed against the item.
	ItemStatusSold ItemStatus = "sold"
)

// Transition errors. The status machine allows pending->active and
// active->sold exactly once each; anything else is invalid.
var (
	ErrItemNotFound      = errors.New("item not found")
	ErrInvalidTransition = errors.New("invalid item status transition")
)

// Item is a single listing created by a seller.
type Item struct {
	ID        int64
	OwnerID   int64
	Status    ItemStatus
	CreatedAt time.Time
}

// ItemImage is one photo of an item, referenced by blob pointer. Images are
// immutable once created and ordered by creation.
type ItemImage struct {
	ID          int64
	ItemID      int64
	BlobPointer string
	CreatedAt   time.Time
}

// Analysis is one persisted condition+price report for an item. Rows are
// never mutated after insert.
type Analysis struct {
	ID               int64
	ItemID           int64
	JobID            string
	Name             string
	Narrative        string
	Issues           []string
	Positives        []string
	UsageLevel       string
	RecommendedPrice *int64
	PriceReason      string
	Currency         string
	CreatedAt        time.Time
}

// ItemStore is the item persistence contract the pipeline depends on.
type ItemStore interface {
	CreateItem(ownerID int64) (*Item, error)
	GetItem(id int64) (*Item, error)
	AddItemImage(itemID int64, blobPointer string) (*ItemImage, error)
	ItemImages(itemID int64) ([]ItemImage, error)
	// MarkItemActive flips a pending item to active. It fails with
	// ErrInvalidTransition if the item is not pending.
	MarkItemActive(id int64) error
	// MarkItemSold flips an active item to sold.
	MarkItemSold(id int64) error
}

// AnalysisStore is the analysis persistence contract.
type AnalysisStore interface {
	// SaveAnalysis inserts one complete analysis row. The insert is keyed
	// on (item_id, job_id): a redelivered job overwrites its own row
	// instead of appending a duplicate.
	SaveAnalysis(a *Analysis) error
	// LatestAnalysisByItem returns the newest analysis for an item, or
	// nil, nil when none exists.
	LatestAnalysisByItem(itemID int64) (*Analysis, error)
	// AnalysesByOwner returns the latest analysis of every item owned by
	// the given user, newest first.
	AnalysesByOwner(ownerID int64) ([]Analysis, error)
}

// SQLiteStore implements ItemStore and AnalysisStore on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and if needed initializes) the store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL mode and busy timeout for concurrent workers
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	itemsQuery := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(itemsQuery); err != nil {
		return fmt.Errorf("failed to create items table: %w", err)
	}

	imagesQuery := `
	CREATE TABLE IF NOT EXISTS item_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		blob_pointer TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);
	`
	if _, err := s.db.Exec(imagesQuery); err != nil {
		return fmt.Errorf("failed to create item_images table: %w", err)
	}

	analysisQuery := `
	CREATE TABLE IF NOT EXISTS product_analysis (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		job_id TEXT NOT NULL,
		name TEXT NOT NULL,
		analysis TEXT NOT NULL,
		issues TEXT NOT NULL DEFAULT '[]',
		positives TEXT NOT NULL DEFAULT '[]',
		usage_level TEXT,
		recommended_price INTEGER,
		price_reason TEXT,
		currency TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (item_id, job_id),
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);
	`
	if _, err := s.db.Exec(analysisQuery); err != nil {
		return fmt.Errorf("failed to create product_analysis table: %w", err)
	}

	// Enable foreign keys for cascade delete
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateItem inserts a new item in pending status.
func (s *SQLiteStore) CreateItem(ownerID int64) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO items (owner_id, status, created_at) VALUES (?, ?, ?)",
		ownerID, ItemStatusPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read item id: %w", err)
	}

	return &Item{ID: id, OwnerID: ownerID, Status: ItemStatusPending, CreatedAt: now}, nil
}

// GetItem retrieves an item by id.
func (s *SQLiteStore) GetItem(id int64) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var item Item
	err := s.db.QueryRow(
		"SELECT id, owner_id, status, created_at FROM items WHERE id = ?", id,
	).Scan(&item.ID, &item.OwnerID, &item.Status, &item.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	return &item, nil
}

// AddItemImage appends an image to an item.
func (s *SQLiteStore) AddItemImage(itemID int64, blobPointer string) (*ItemImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO item_images (item_id, blob_pointer, created_at) VALUES (?, ?, ?)",
		itemID, blobPointer, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add item image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read image id: %w", err)
	}

	return &ItemImage{ID: id, ItemID: itemID, BlobPointer: blobPointer, CreatedAt: now}, nil
}

// ItemImages returns an item's images in creation order.
func (s *SQLiteStore) ItemImages(itemID int64) ([]ItemImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, item_id, blob_pointer, created_at FROM item_images WHERE item_id = ? ORDER BY id",
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query item images: %w", err)
	}
	defer rows.Close()

	var images []ItemImage
	for rows.Next() {
		var img ItemImage
		if err := rows.Scan(&img.ID, &img.ItemID, &img.BlobPointer, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item image: %w", err)
		}
		images = append(images, img)
	}

	return images, rows.Err()
}

// MarkItemActive transitions an item from pending to active. The guarded
// update makes the transition happen at most once across competing workers.
func (s *SQLiteStore) MarkItemActive(id int64) error {
	return s.transition(id, ItemStatusPending, ItemStatusActive)
}

// MarkItemSold transitions an item from active to sold.
func (s *SQLiteStore) MarkItemSold(id int64) error {
	return s.transition(id, ItemStatusActive, ItemStatusSold)
}

func (s *SQLiteStore) transition(id int64, from, to ItemStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE items SET status = ? WHERE id = ? AND status = ?",
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: item %d is not %s", ErrInvalidTransition, id, from)
	}

	return nil
}

// SaveAnalysis inserts one complete analysis row, upserting on
// (item_id, job_id) so a redelivered job cannot duplicate its row.
func (s *SQLiteStore) SaveAnalysis(a *Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuesJSON, err := json.Marshal(a.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}
	positivesJSON, err := json.Marshal(a.Positives)
	if err != nil {
		return fmt.Errorf("failed to marshal positives: %w", err)
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO product_analysis
			(item_id, job_id, name, analysis, issues, positives, usage_level, recommended_price, price_reason, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, job_id) DO UPDATE SET
			name = excluded.name,
			analysis = excluded.analysis,
			issues = excluded.issues,
			positives = excluded.positives,
			usage_level = excluded.usage_level,
			recommended_price = excluded.recommended_price,
			price_reason = excluded.price_reason,
			currency = excluded.currency
	`, a.ItemID, a.JobID, a.Name, a.Narrative, string(issuesJSON), string(positivesJSON),
		a.UsageLevel, nullableInt(a.RecommendedPrice), nullableString(a.PriceReason), nullableString(a.Currency), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}

	return nil
}

const analysisColumns = "id, item_id, job_id, name, analysis, issues, positives, usage_level, recommended_price, price_reason, currency, created_at"

// LatestAnalysisByItem returns the newest analysis for an item, nil when
// none exists. Ties on created_at break on row id, so a reader between two
// inserts always sees a single consistent winner.
func (s *SQLiteStore) LatestAnalysisByItem(itemID int64) (*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+analysisColumns+" FROM product_analysis WHERE item_id = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		itemID,
	)

	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest analysis: %w", err)
	}

	return a, nil
}

// AnalysesByOwner returns the latest analysis of each item owned by ownerID,
// newest first.
func (s *SQLiteStore) AnalysesByOwner(ownerID int64) ([]Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+analysisColumns+` FROM product_analysis
		WHERE id IN (
			SELECT MAX(pa.id) FROM product_analysis pa
			JOIN items i ON i.id = pa.item_id
			WHERE i.owner_id = ?
			GROUP BY pa.item_id
		)
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses by owner: %w", err)
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}

	return analyses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	var (
		a                Analysis
		issuesJSON       string
		positivesJSON    string
		usageLevel       sql.NullString
		recommendedPrice sql.NullInt64
		priceReason      sql.NullString
		currency         sql.NullString
	)

	err := row.Scan(&a.ID, &a.ItemID, &a.JobID, &a.Name, &a.Narrative, &issuesJSON, &positivesJSON,
		&usageLevel, &recommendedPrice, &priceReason, &currency, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(issuesJSON), &a.Issues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
	}
	if err := json.Unmarshal([]byte(positivesJSON), &a.Positives); err != nil {
		return nil, fmt.Errorf("failed to unmarshal positives: %w", err)
	}

	a.UsageLevel = usageLevel.String
	if recommendedPrice.Valid {
		price := recommendedPrice.Int64
		a.RecommendedPrice = &price
	}
	a.PriceReason = priceReason.String
	a.Currency = currency.String

	return &a, nil
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
