package main

import "testing"

func TestCreativeObjectPath_UsesArchiveID(t *testing.T) {
	// A row whose primary key is 7 but whose creative was stored under its
	// archive id must resolve to the archive-id key.
	archiveID := "123456789"
	path, ok := creativeObjectPath(&archiveID)
	if !ok {
		t.Fatal("expected a path for a populated archive id")
	}
	if path != "123456789.jpeg" {
		t.Errorf("path = %q, want %q", path, "123456789.jpeg")
	}
}

func TestCreativeObjectPath_NilArchiveID(t *testing.T) {
	if path, ok := creativeObjectPath(nil); ok {
		t.Errorf("expected no path for nil archive id, got %q", path)
	}
}

func TestCreativeObjectPath_EmptyArchiveID(t *testing.T) {
	empty := ""
	if path, ok := creativeObjectPath(&empty); ok {
		t.Errorf("expected no path for empty archive id, got %q", path)
	}
}
