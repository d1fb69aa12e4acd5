package storage

import "testing"

func TestBuildUploadPath(t *testing.T) {
	key, err := BuildUploadPath("upload_salesxlsx_0a1b2c3d")
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	want := "uploads/upload_salesxlsx_0a1b2c3d/source"
	if key != want {
		t.Fatalf("BuildUploadPath() = %q, want %q", key, want)
	}
}

func TestBuildUploadPathRejectsTraversal(t *testing.T) {
	for _, name := range []string{"", "../etc", "a/b", "_hidden"} {
		if _, err := BuildUploadPath(name); err == nil {
			t.Fatalf("BuildUploadPath(%q) expected error", name)
		}
	}
}
