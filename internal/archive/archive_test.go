package archive

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close zip file: %v", err)
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "project.zip")
	writeZip(t, src, map[string]string{
		"Shop/Program.cs":                      "var app = builder.Build();",
		"Shop/Repositories/ICartRepository.cs": "public interface ICartRepository {}",
		"Shop/Empty/":                          "",
	})

	dest := filepath.Join(dir, "extract")
	if err := Extract(src, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "Shop", "Repositories", "ICartRepository.cs"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "public interface ICartRepository {}" {
		t.Errorf("extracted content = %q", got)
	}
	if info, err := os.Stat(filepath.Join(dest, "Shop", "Empty")); err != nil || !info.IsDir() {
		t.Errorf("expected directory entry to be created, err=%v", err)
	}
}

func TestExtractMalformed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.zip")
	if err := os.WriteFile(src, []byte("this is not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Extract(src, filepath.Join(dir, "extract"))
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, map[string]string{"../outside.cs": "x"})

	err := Extract(src, filepath.Join(dir, "extract"))
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "outside.cs")); !os.IsNotExist(statErr) {
		t.Errorf("traversal entry was written outside destination")
	}
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "out")
	files := map[string]string{
		"pom.xml":                        "<project/>",
		"Config/WebConfig.java":          "class WebConfig {}",
		"Repository/CartRepository.java": "interface CartRepository {}",
	}
	for name, body := range files {
		p := filepath.Join(src, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	dst := filepath.Join(dir, "out.zip")
	if err := Create(src, dst); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	r, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
		if f.Method != zip.Deflate {
			t.Errorf("%s: method = %d, want Deflate", f.Name, f.Method)
		}
	}
	want := []string{"Config/WebConfig.java", "Repository/CartRepository.java", "pom.xml"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("archive entries = %v, want %v", names, want)
	}
}

func TestCreateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "out")
	if err := os.MkdirAll(filepath.Join(src, "Model"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "Model", "Cart.java"), []byte("class Cart {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "out.zip")
	if err := Create(src, dst); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	back := filepath.Join(dir, "back")
	if err := Extract(dst, back); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(back, "Model", "Cart.java"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "class Cart {}" {
		t.Errorf("round trip content = %q", got)
	}
}
