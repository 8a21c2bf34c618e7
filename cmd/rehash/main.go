package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"log/slog"

	"github.com/corona10/goimagehash"

	"github.com/takenap/adlib/internal/config"
	"github.com/takenap/adlib/internal/database"
	"github.com/takenap/adlib/internal/storage"
)

// creativeObjectPath builds the storage key for an ad's stored creative.
// Objects are keyed by ad_archive_id, never by the numeric row id, so rows
// without an archive id have no locatable object.
func creativeObjectPath(archiveID *string) (string, bool) {
	if archiveID == nil || *archiveID == "" {
		return "", false
	}
	return *archiveID + ".jpeg", true
}

// rehash backfills creative_hash for ads that predate hashing and links
// perceptual duplicates via duplicate_of_id.
func main() {
	limit := flag.Int("limit", 100, "maximum number of ads to hash in one run")
	dryRun := flag.Bool("dry-run", false, "compute hashes without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	media, err := storage.NewMediaStore(ctx, cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey)
	if err != nil {
		log.Fatalf("Failed to initialize media store: %v", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT id, ad_archive_id FROM ads_library
		WHERE creative_hash IS NULL AND display_format = 'IMAGE'
		ORDER BY id
		LIMIT $1
	`, *limit)
	if err != nil {
		log.Fatalf("Failed to query ads: %v", err)
	}

	type candidate struct {
		id        int64
		archiveID *string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.archiveID); err != nil {
			rows.Close()
			log.Fatalf("Failed to scan ad: %v", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()

	slog.Info("Rehash run starting", "candidates", len(candidates), "dry_run", *dryRun)

	buckets := []string{cfg.ImageBucket, cfg.VideoBucket}
	var hashed, skipped, missing, failed, duplicates int

	for _, c := range candidates {
		id := c.id
		objectPath, ok := creativeObjectPath(c.archiveID)
		if !ok {
			skipped++
			slog.Warn("no archive id, cannot locate creative", "ad_id", id)
			continue
		}
		res, err := media.Fetch(ctx, buckets, objectPath)
		if err != nil {
			missing++
			slog.Warn("no stored creative", "ad_id", id, "path", objectPath)
			continue
		}

		img, _, err := image.Decode(bytes.NewReader(res.Body))
		if err != nil {
			failed++
			slog.Warn("undecodable creative", "ad_id", id, "path", res.Path, "error", err)
			continue
		}

		hash, err := goimagehash.DifferenceHash(img)
		if err != nil {
			failed++
			slog.Warn("hash failed", "ad_id", id, "error", err)
			continue
		}
		hashStr := hash.ToString()

		// An earlier ad with the same hash makes this one a duplicate.
		var dupID *int64
		var existing int64
		err = pool.QueryRow(ctx, `
			SELECT id FROM ads_library
			WHERE creative_hash = $1 AND id != $2
			ORDER BY id LIMIT 1
		`, hashStr, id).Scan(&existing)
		if err == nil {
			dupID = &existing
			duplicates++
		}

		if *dryRun {
			fmt.Printf("ad %d: %s", id, hashStr)
			if dupID != nil {
				fmt.Printf(" (duplicate of %d)", *dupID)
			}
			fmt.Println()
			hashed++
			continue
		}

		_, err = pool.Exec(ctx, `
			UPDATE ads_library SET creative_hash = $1, duplicate_of_id = $2 WHERE id = $3
		`, hashStr, dupID, id)
		if err != nil {
			failed++
			slog.Warn("update failed", "ad_id", id, "error", err)
			continue
		}
		hashed++
	}

	slog.Info("Rehash run complete",
		"hashed", hashed, "skipped", skipped, "missing", missing, "failed", failed, "duplicates", duplicates)
}
