package library

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ad is one ingested advertising creative from the external ad library.
type Ad struct {
	ID                   int64     `json:"id"`
	AdArchiveID          *string   `json:"ad_archive_id"`
	PageName             *string   `json:"page_name"`
	DisplayFormat        *string   `json:"display_format"` // VIDEO | IMAGE
	Title                *string   `json:"title"`
	Text                 *string   `json:"text"`
	Caption              *string   `json:"caption"`
	Hook                 *string   `json:"hook"`
	Topic                *string   `json:"topic"`
	Concept              *string   `json:"concept"`
	Character            *string   `json:"character"`
	Realisation          *string   `json:"realisation"`
	CTAText              *string   `json:"cta_text"`
	LinkURL              *string   `json:"link_url"`
	ImageURL             *string   `json:"image_url"`
	VideoHDURL           *string   `json:"video_hd_url"`
	VideoPreviewImageURL *string   `json:"video_preview_image_url"`
	CreativeHash         *string   `json:"creative_hash"`
	DuplicateOfID        *int64    `json:"duplicate_of_id"`
	Tags                 []string  `json:"tags"`
	JobID                *string   `json:"job_id"`
	CreatedAt            time.Time `json:"created_at"`
}

const adColumns = `id, ad_archive_id, page_name, display_format, title, text, caption,
	hook, topic, concept, character, realisation, cta_text, link_url,
	image_url, video_hd_url, video_preview_image_url, creative_hash,
	duplicate_of_id, tags, job_id, created_at`

func scanAd(row interface{ Scan(...any) error }) (*Ad, error) {
	var ad Ad
	err := row.Scan(&ad.ID, &ad.AdArchiveID, &ad.PageName, &ad.DisplayFormat,
		&ad.Title, &ad.Text, &ad.Caption, &ad.Hook, &ad.Topic, &ad.Concept,
		&ad.Character, &ad.Realisation, &ad.CTAText, &ad.LinkURL,
		&ad.ImageURL, &ad.VideoHDURL, &ad.VideoPreviewImageURL,
		&ad.CreativeHash, &ad.DuplicateOfID, &ad.Tags, &ad.JobID, &ad.CreatedAt)
	if err != nil {
		return nil, err
	}
	if ad.Tags == nil {
		ad.Tags = []string{}
	}
	return &ad, nil
}

// AdService owns all reads and writes against ads_library.
type AdService struct {
	db *pgxpool.Pool
}

func NewAdService(db *pgxpool.Pool) *AdService {
	return &AdService{db: db}
}

// ListFilter narrows a listing. Zero values mean "no constraint".
type ListFilter struct {
	PageName      string `json:"page_name"`
	DisplayFormat string `json:"display_format"`
	Search        string `json:"search"`
	Tag           string `json:"tag"`
	JobID         string `json:"job_id"`
	Limit         int    `json:"limit"`
	Offset        int    `json:"offset"`
}

// buildListQuery translates a filter into SQL plus positional args.
func buildListQuery(f ListFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.PageName != "" {
		add("page_name = $%d", f.PageName)
	}
	if f.DisplayFormat != "" {
		add("display_format = $%d", strings.ToUpper(f.DisplayFormat))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(title ILIKE $%d OR text ILIKE $%d OR hook ILIKE $%d)", n, n, n))
	}
	if f.Tag != "" {
		add("$%d = ANY(tags)", f.Tag)
	}
	if f.JobID != "" {
		add("job_id = $%d", f.JobID)
	}

	query := `SELECT ` + adColumns + ` FROM ads_library`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// List returns ads matching the filter, newest first.
func (s *AdService) List(ctx context.Context, f ListFilter) ([]Ad, int, error) {
	query, args := buildListQuery(f)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query ads: %w", err)
	}
	defer rows.Close()

	var ads []Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan ad: %w", err)
		}
		ads = append(ads, *ad)
	}
	if ads == nil {
		ads = []Ad{}
	}
	return ads, http.StatusOK, nil
}

// Get returns one ad by numeric ID.
func (s *AdService) Get(ctx context.Context, id int64) (*Ad, int, error) {
	row := s.db.QueryRow(ctx, `SELECT `+adColumns+` FROM ads_library WHERE id = $1`, id)
	ad, err := scanAd(row)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("ad not found")
	}
	return ad, http.StatusOK, nil
}

// GetByIDs returns ads for an explicit id list, preserving DB order.
func (s *AdService) GetByIDs(ctx context.Context, ids []int64) ([]Ad, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+adColumns+` FROM ads_library WHERE id = ANY($1) ORDER BY id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query ads by ids: %w", err)
	}
	defer rows.Close()

	var ads []Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		ads = append(ads, *ad)
	}
	return ads, nil
}

// GetByJob returns all ads of one import batch.
func (s *AdService) GetByJob(ctx context.Context, jobID string) ([]Ad, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+adColumns+` FROM ads_library WHERE job_id = $1 ORDER BY id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query ads by job: %w", err)
	}
	defer rows.Close()

	var ads []Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		ads = append(ads, *ad)
	}
	return ads, nil
}

// AdInput is the writable subset of an ad row.
type AdInput struct {
	AdArchiveID          *string  `json:"ad_archive_id"`
	PageName             *string  `json:"page_name"`
	DisplayFormat        *string  `json:"display_format"`
	Title                *string  `json:"title"`
	Text                 *string  `json:"text"`
	Caption              *string  `json:"caption"`
	Hook                 *string  `json:"hook"`
	Topic                *string  `json:"topic"`
	Concept              *string  `json:"concept"`
	Character            *string  `json:"character"`
	Realisation          *string  `json:"realisation"`
	CTAText              *string  `json:"cta_text"`
	LinkURL              *string  `json:"link_url"`
	ImageURL             *string  `json:"image_url"`
	VideoHDURL           *string  `json:"video_hd_url"`
	VideoPreviewImageURL *string  `json:"video_preview_image_url"`
	CreativeHash         *string  `json:"creative_hash"`
	Tags                 []string `json:"tags"`
	JobID                *string  `json:"job_id"`
}

// Create inserts a new ad. ad_archive_id duplicates are tolerated: the
// schema deliberately carries no unique constraint (see the debug report).
func (s *AdService) Create(ctx context.Context, input AdInput) (*Ad, int, error) {
	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO ads_library (
			ad_archive_id, page_name, display_format, title, text, caption,
			hook, topic, concept, character, realisation, cta_text, link_url,
			image_url, video_hd_url, video_preview_image_url, creative_hash, tags, job_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING `+adColumns,
		input.AdArchiveID, input.PageName, input.DisplayFormat, input.Title,
		input.Text, input.Caption, input.Hook, input.Topic, input.Concept,
		input.Character, input.Realisation, input.CTAText, input.LinkURL,
		input.ImageURL, input.VideoHDURL, input.VideoPreviewImageURL,
		input.CreativeHash, tags, input.JobID)
	ad, err := scanAd(row)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("insert ad: %w", err)
	}
	return ad, http.StatusCreated, nil
}

// UpsertByArchiveID updates the most recent row with a matching
// ad_archive_id or inserts a new one. Used by the inbound webhook.
func (s *AdService) UpsertByArchiveID(ctx context.Context, input AdInput) (*Ad, error) {
	if input.AdArchiveID == nil || *input.AdArchiveID == "" {
		ad, _, err := s.Create(ctx, input)
		return ad, err
	}

	var existingID int64
	err := s.db.QueryRow(ctx, `
		SELECT id FROM ads_library WHERE ad_archive_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, *input.AdArchiveID).Scan(&existingID)
	if err != nil {
		ad, _, createErr := s.Create(ctx, input)
		return ad, createErr
	}

	ad, _, updateErr := s.Update(ctx, existingID, input)
	return ad, updateErr
}

// Update overwrites the writable fields of an ad.
func (s *AdService) Update(ctx context.Context, id int64, input AdInput) (*Ad, int, error) {
	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}
	row := s.db.QueryRow(ctx, `
		UPDATE ads_library SET
			ad_archive_id = COALESCE($1, ad_archive_id),
			page_name = COALESCE($2, page_name),
			display_format = COALESCE($3, display_format),
			title = COALESCE($4, title),
			text = COALESCE($5, text),
			caption = COALESCE($6, caption),
			hook = COALESCE($7, hook),
			topic = COALESCE($8, topic),
			concept = COALESCE($9, concept),
			character = COALESCE($10, character),
			realisation = COALESCE($11, realisation),
			cta_text = COALESCE($12, cta_text),
			link_url = COALESCE($13, link_url),
			image_url = COALESCE($14, image_url),
			video_hd_url = COALESCE($15, video_hd_url),
			video_preview_image_url = COALESCE($16, video_preview_image_url),
			creative_hash = COALESCE($17, creative_hash),
			tags = $18
		WHERE id = $19
		RETURNING `+adColumns,
		input.AdArchiveID, input.PageName, input.DisplayFormat, input.Title,
		input.Text, input.Caption, input.Hook, input.Topic, input.Concept,
		input.Character, input.Realisation, input.CTAText, input.LinkURL,
		input.ImageURL, input.VideoHDURL, input.VideoPreviewImageURL,
		input.CreativeHash, tags, id)
	ad, err := scanAd(row)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("ad not found")
	}
	return ad, http.StatusOK, nil
}

// UpdateTags replaces the tag array of an ad.
func (s *AdService) UpdateTags(ctx context.Context, id int64, tags []string) (*Ad, int, error) {
	if tags == nil {
		tags = []string{}
	}
	row := s.db.QueryRow(ctx, `
		UPDATE ads_library SET tags = $1 WHERE id = $2 RETURNING `+adColumns, tags, id)
	ad, err := scanAd(row)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("ad not found")
	}
	return ad, http.StatusOK, nil
}

// Delete removes an ad.
func (s *AdService) Delete(ctx context.Context, id int64) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM ads_library WHERE id = $1`, id)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("delete ad: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return http.StatusNotFound, fmt.Errorf("ad not found")
	}
	return http.StatusOK, nil
}

// ArchiveIDReport surfaces the lenient ad_archive_id situation: rows missing
// the identifier and identifiers shared by multiple rows.
type ArchiveIDReport struct {
	Total          int                `json:"total"`
	MissingID      int                `json:"missing_archive_id"`
	DuplicateCount int                `json:"duplicate_archive_ids"`
	Duplicates     []ArchiveDuplicate `json:"duplicates"`
}

type ArchiveDuplicate struct {
	AdArchiveID string  `json:"ad_archive_id"`
	Count       int     `json:"count"`
	AdIDs       []int64 `json:"ad_ids"`
}

// CheckArchiveIDs builds the debug report over the whole table.
func (s *AdService) CheckArchiveIDs(ctx context.Context) (*ArchiveIDReport, int, error) {
	report := &ArchiveIDReport{Duplicates: []ArchiveDuplicate{}}

	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE ad_archive_id IS NULL OR ad_archive_id = '')
		FROM ads_library
	`).Scan(&report.Total, &report.MissingID)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("count ads: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT ad_archive_id, COUNT(*), ARRAY_AGG(id ORDER BY id)
		FROM ads_library
		WHERE ad_archive_id IS NOT NULL AND ad_archive_id != ''
		GROUP BY ad_archive_id
		HAVING COUNT(*) > 1
		ORDER BY COUNT(*) DESC
		LIMIT 100
	`)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query duplicates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dup ArchiveDuplicate
		if err := rows.Scan(&dup.AdArchiveID, &dup.Count, &dup.AdIDs); err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan duplicate: %w", err)
		}
		report.Duplicates = append(report.Duplicates, dup)
	}
	report.DuplicateCount = len(report.Duplicates)

	return report, http.StatusOK, nil
}
