package library

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Folder is a user-owned collection of ads.
type Folder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	ItemCount int       `json:"item_count"`
	CreatedAt time.Time `json:"created_at"`
}

// FolderItem links one ad into a folder.
type FolderItem struct {
	ID       string    `json:"id"`
	FolderID string    `json:"folder_id"`
	AdID     int64     `json:"ad_id"`
	AddedAt  time.Time `json:"added_at"`
}

// FolderService owns folders and their items.
type FolderService struct {
	db *pgxpool.Pool
}

func NewFolderService(db *pgxpool.Pool) *FolderService {
	return &FolderService{db: db}
}

// List returns the caller's folders with item counts, newest first.
func (s *FolderService) List(ctx context.Context, userID string) ([]Folder, int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT f.id, f.user_id, f.name, COUNT(fi.id), f.created_at
		FROM folders f
		LEFT JOIN folder_items fi ON fi.folder_id = f.id
		WHERE f.user_id = $1
		GROUP BY f.id
		ORDER BY f.created_at DESC
	`, userID)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.ItemCount, &f.CreatedAt); err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if folders == nil {
		folders = []Folder{}
	}
	return folders, http.StatusOK, nil
}

// Create makes a new folder owned by userID.
func (s *FolderService) Create(ctx context.Context, userID, name string) (*Folder, int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("folder name is required")
	}
	if len(name) > 120 {
		return nil, http.StatusBadRequest, fmt.Errorf("folder name too long")
	}

	f := Folder{ID: uuid.NewString(), UserID: userID, Name: name}
	err := s.db.QueryRow(ctx, `
		INSERT INTO folders (id, user_id, name) VALUES ($1, $2, $3)
		RETURNING created_at
	`, f.ID, f.UserID, f.Name).Scan(&f.CreatedAt)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("insert folder: %w", err)
	}
	return &f, http.StatusCreated, nil
}

// Rename changes a folder's name. Only the owner may rename.
func (s *FolderService) Rename(ctx context.Context, userID, folderID, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return http.StatusBadRequest, fmt.Errorf("folder name is required")
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE folders SET name = $1 WHERE id = $2 AND user_id = $3
	`, name, folderID, userID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("rename folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return http.StatusNotFound, fmt.Errorf("folder not found")
	}
	return http.StatusOK, nil
}

// Delete removes a folder and its items. Only the owner may delete.
func (s *FolderService) Delete(ctx context.Context, userID, folderID string) (int, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM folders WHERE id = $1 AND user_id = $2
	`, folderID, userID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("delete folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return http.StatusNotFound, fmt.Errorf("folder not found")
	}
	return http.StatusOK, nil
}

// ListItems returns the ads collected in a folder, in added order.
func (s *FolderService) ListItems(ctx context.Context, userID, folderID string) ([]Ad, int, error) {
	if status, err := s.requireOwner(ctx, userID, folderID); err != nil {
		return nil, status, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+prefixedAdColumns("a")+`
		FROM folder_items fi
		JOIN ads_library a ON a.id = fi.ad_id
		WHERE fi.folder_id = $1
		ORDER BY fi.added_at
	`, folderID)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query folder items: %w", err)
	}
	defer rows.Close()

	var ads []Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan folder item: %w", err)
		}
		ads = append(ads, *ad)
	}
	if ads == nil {
		ads = []Ad{}
	}
	return ads, http.StatusOK, nil
}

// AddItem puts an ad into a folder. Adding an ad twice is a no-op.
func (s *FolderService) AddItem(ctx context.Context, userID, folderID string, adID int64) (int, error) {
	if status, err := s.requireOwner(ctx, userID, folderID); err != nil {
		return status, err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO folder_items (id, folder_id, ad_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (folder_id, ad_id) DO NOTHING
	`, uuid.NewString(), folderID, adID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("add folder item: %w", err)
	}
	return http.StatusCreated, nil
}

// RemoveItem takes an ad out of a folder.
func (s *FolderService) RemoveItem(ctx context.Context, userID, folderID string, adID int64) (int, error) {
	if status, err := s.requireOwner(ctx, userID, folderID); err != nil {
		return status, err
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM folder_items WHERE folder_id = $1 AND ad_id = $2
	`, folderID, adID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("remove folder item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return http.StatusNotFound, fmt.Errorf("item not found")
	}
	return http.StatusOK, nil
}

// Transfer moves folder ownership to the user registered under newOwnerEmail.
// Only the current owner may transfer, checked against the bearer identity.
func (s *FolderService) Transfer(ctx context.Context, userID, folderID, newOwnerEmail string) (int, error) {
	newOwnerEmail = strings.ToLower(strings.TrimSpace(newOwnerEmail))
	if newOwnerEmail == "" {
		return http.StatusBadRequest, fmt.Errorf("new owner email is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	var ownerID string
	err = tx.QueryRow(ctx, `SELECT user_id FROM folders WHERE id = $1 FOR UPDATE`, folderID).Scan(&ownerID)
	if err != nil {
		return http.StatusNotFound, fmt.Errorf("folder not found")
	}
	if ownerID != userID {
		return http.StatusForbidden, fmt.Errorf("only the folder owner can transfer it")
	}

	var newOwnerID string
	err = tx.QueryRow(ctx, `SELECT id FROM app_users WHERE email = $1`, newOwnerEmail).Scan(&newOwnerID)
	if err != nil {
		return http.StatusNotFound, fmt.Errorf("no user registered under that email")
	}
	if newOwnerID == ownerID {
		return http.StatusBadRequest, fmt.Errorf("folder already belongs to that user")
	}

	if _, err := tx.Exec(ctx, `UPDATE folders SET user_id = $1 WHERE id = $2`, newOwnerID, folderID); err != nil {
		return http.StatusInternalServerError, fmt.Errorf("transfer folder: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return http.StatusInternalServerError, fmt.Errorf("commit transfer: %w", err)
	}
	return http.StatusOK, nil
}

func (s *FolderService) requireOwner(ctx context.Context, userID, folderID string) (int, error) {
	var ownerID string
	err := s.db.QueryRow(ctx, `SELECT user_id FROM folders WHERE id = $1`, folderID).Scan(&ownerID)
	if err != nil {
		return http.StatusNotFound, fmt.Errorf("folder not found")
	}
	if ownerID != userID {
		return http.StatusForbidden, fmt.Errorf("folder belongs to another user")
	}
	return http.StatusOK, nil
}

// prefixedAdColumns qualifies the shared column list with a table alias for
// joined queries.
func prefixedAdColumns(alias string) string {
	cols := strings.Split(adColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
