package library

import (
	"strconv"
	"strings"
)

// csvColumns is the fixed export column order. Spreadsheet imports on the
// consuming side depend on it, do not reorder.
var csvColumns = []string{
	"id",
	"ad_archive_id",
	"page_name",
	"display_format",
	"title",
	"text",
	"caption",
	"hook",
	"topic",
	"concept",
	"character",
	"realisation",
	"cta_text",
	"link_url",
	"image_url",
	"video_hd_url",
	"tags",
	"job_id",
	"created_at",
}

// csvBOM marks the output as UTF-8 so Excel decodes Cyrillic text correctly.
const csvBOM = "\xEF\xBB\xBF"

// csvField quotes a single value. Every field is quoted, internal quotes are
// doubled, and line breaks inside values collapse to a single space so each
// record stays on one physical line.
func csvField(v string) string {
	v = strings.ReplaceAll(v, "\r\n", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	v = strings.ReplaceAll(v, `"`, `""`)
	return `"` + v + `"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func adToCSVRecord(ad Ad) []string {
	archiveID := deref(ad.AdArchiveID)
	return []string{
		strconv.FormatInt(ad.ID, 10),
		archiveID,
		deref(ad.PageName),
		deref(ad.DisplayFormat),
		deref(ad.Title),
		deref(ad.Text),
		deref(ad.Caption),
		deref(ad.Hook),
		deref(ad.Topic),
		deref(ad.Concept),
		deref(ad.Character),
		deref(ad.Realisation),
		deref(ad.CTAText),
		deref(ad.LinkURL),
		deref(ad.ImageURL),
		deref(ad.VideoHDURL),
		strings.Join(ad.Tags, ","),
		deref(ad.JobID),
		ad.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

// ExportCSV renders ads as a semicolon-delimited CSV document with a UTF-8
// BOM and a header row.
func ExportCSV(ads []Ad) []byte {
	var b strings.Builder
	b.WriteString(csvBOM)

	writeRecord := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(csvField(f))
		}
		b.WriteString("\r\n")
	}

	writeRecord(csvColumns)
	for _, ad := range ads {
		writeRecord(adToCSVRecord(ad))
	}
	return []byte(b.String())
}
