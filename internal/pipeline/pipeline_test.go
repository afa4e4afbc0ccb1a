package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/projectconverter/internal/llm"
	"github.com/Lllllllleong/projectconverter/internal/models"
	"github.com/Lllllllleong/projectconverter/internal/prompts"
)

// sampleProject is a small but complete .NET project.
var sampleProject = map[string]string{
	"Controllers/CartController.cs":   "public class CartController : ControllerBase {}",
	"Data/AppDbContext.cs":            "public class AppDbContext : DbContext { DbSet<Cart> Carts; }",
	"Models/Cart.cs":                  "public class Cart { public int Id { get; set; } }",
	"Program.cs":                      "var builder = WebApplication.CreateBuilder(args);",
	"Shop.csproj":                     "<Project Sdk=\"Microsoft.NET.Sdk.Web\"></Project>",
	"Repositories/ICartRepository.cs": "public interface ICartRepository {}",
	"Services/CartService.cs":         "public class CartService : ICartService {}",
	"appsettings.json":                `{"ConnectionStrings":{"Default":"Server=db"}}`,
	"README.md":                       "# shop",
}

func writeZip(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "upload.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakeModel records prompts and answers with a fenced class.
type fakeModel struct {
	mu      sync.Mutex
	prompts []string
	fail    func(prompt string) error
}

func (m *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.fail != nil {
		if err := m.fail(prompt); err != nil {
			return "", err
		}
	}
	return "```java\npublic class Generated {}\n```\n", nil
}

func newPipeline(t *testing.T, g llm.Generator) *Pipeline {
	t.Helper()
	renderer, err := prompts.New(prompts.DefaultPackage)
	if err != nil {
		t.Fatalf("prompts.New failed: %v", err)
	}
	return New(g, renderer)
}

func collect(t *testing.T, ch <-chan models.Record) []models.Record {
	t.Helper()
	var records []models.Record
	timeout := time.After(10 * time.Second)
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return records
			}
			records = append(records, rec)
		case <-timeout:
			t.Fatal("pipeline did not finish")
		}
	}
}

func filePaths(records []models.Record) []string {
	var paths []string
	for _, r := range records {
		if r.Type == models.RecordFile {
			paths = append(paths, r.Data.Path)
		}
	}
	return paths
}

func TestRunConvertsProject(t *testing.T) {
	dir := t.TempDir()
	model := &fakeModel{}
	records := collect(t, newPipeline(t, model).Run(context.Background(), writeZip(t, dir, sampleProject), dir))

	want := []string{
		"Controller/CartController.java",
		"Model/Cart.java",
		"EZoneApplication.java",
		"Config/SecurityConfig.java",
		"Config/WebConfig.java",
		"Repository/CartRepository.java",
		"Service/CartServiceImpl.java",
		"pom.xml",
		"application.properties",
	}
	got := filePaths(records)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("file records = %v, want %v", got, want)
	}

	last := records[len(records)-1]
	if last.Type != models.RecordComplete {
		t.Fatalf("last record type = %q, want complete", last.Type)
	}
	if last.ArchivePath != filepath.Join(dir, OutputDir)+".zip" {
		t.Errorf("archive path = %q", last.ArchivePath)
	}

	zr, err := zip.OpenReader(last.ArchivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != len(want) {
		t.Errorf("archive has %d entries, want %d", len(zr.File), len(want))
	}

	for _, r := range records {
		if r.Type != models.RecordFile {
			continue
		}
		if r.Data.ConvertedCode != "public class Generated {}" {
			t.Errorf("%s: converted code not sanitized: %q", r.Data.Path, r.Data.ConvertedCode)
		}
		written, err := os.ReadFile(filepath.Join(dir, OutputDir, filepath.FromSlash(r.Data.Path)))
		if err != nil {
			t.Errorf("%s: output not written: %v", r.Data.Path, err)
			continue
		}
		if string(written) != r.Data.ConvertedCode {
			t.Errorf("%s: written content differs from record", r.Data.Path)
		}
	}

	var modelPrompt string
	for _, p := range model.prompts {
		if strings.Contains(p, "public class Cart {") {
			modelPrompt = p
		}
	}
	if !strings.Contains(modelPrompt, "DbSet<Cart>") {
		t.Error("model prompt does not embed the DbContext source")
	}
}

func TestRunNoEligibleFiles(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeZip(t, dir, map[string]string{"README.md": "hi", "img/logo.png": "png"})
	records := collect(t, newPipeline(t, &fakeModel{}).Run(context.Background(), archivePath, dir))

	if len(records) != 1 || records[0].Type != models.RecordError {
		t.Fatalf("records = %+v, want a single error", records)
	}
	if records[0].Message != ErrNoEligibleFiles.Error() {
		t.Errorf("message = %q", records[0].Message)
	}
}

func TestRunMalformedArchive(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "upload.zip")
	if err := os.WriteFile(archivePath, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	records := collect(t, newPipeline(t, &fakeModel{}).Run(context.Background(), archivePath, dir))
	if len(records) != 1 || records[0].Type != models.RecordError {
		t.Fatalf("records = %+v, want a single error", records)
	}
}

func TestRunFileFailureDoesNotStopRun(t *testing.T) {
	dir := t.TempDir()
	model := &fakeModel{fail: func(prompt string) error {
		if strings.Contains(prompt, "CartController : ControllerBase") {
			return errors.New("quota exceeded")
		}
		return nil
	}}
	records := collect(t, newPipeline(t, model).Run(context.Background(), writeZip(t, dir, sampleProject), dir))

	var errs []string
	for _, r := range records {
		if r.Type == models.RecordError {
			errs = append(errs, r.Message)
		}
	}
	if len(errs) != 1 || errs[0] != "Error converting CartController.cs: quota exceeded" {
		t.Fatalf("error records = %q", errs)
	}
	if n := len(filePaths(records)); n != 8 {
		t.Errorf("file records = %d, want 8", n)
	}
	if records[len(records)-1].Type != models.RecordComplete {
		t.Error("run did not complete after a file failure")
	}
	if _, err := os.Stat(filepath.Join(dir, OutputDir, "Controller", "CartController.java")); !os.IsNotExist(err) {
		t.Error("failed file should not be written")
	}
}

func TestRunRefusalIsFailure(t *testing.T) {
	dir := t.TempDir()
	model := llm.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "public class Cart {") {
			return "I am unable to convert this entity.", nil
		}
		return "public class Generated {}", nil
	})
	records := collect(t, newPipeline(t, model).Run(context.Background(), writeZip(t, dir, sampleProject), dir))

	for _, r := range records {
		if r.Type == models.RecordFile && r.Data.Path == "Model/Cart.java" {
			t.Fatal("refused output was emitted as a file")
		}
	}
	var found bool
	for _, r := range records {
		if r.Type == models.RecordError && strings.HasPrefix(r.Message, "Error converting Cart.cs:") {
			found = true
		}
	}
	if !found {
		t.Error("expected an error record for the refused file")
	}
}

func TestRunEmptyOutputIsFailure(t *testing.T) {
	dir := t.TempDir()
	model := llm.GeneratorFunc(func(context.Context, string) (string, error) {
		return "```java\n```", nil
	})
	files := map[string]string{"Models/Cart.cs": "public class Cart {}"}
	records := collect(t, newPipeline(t, model).Run(context.Background(), writeZip(t, dir, files), dir))

	if len(records) != 2 || records[0].Type != models.RecordError || records[1].Type != models.RecordComplete {
		t.Fatalf("records = %+v, want error then complete", records)
	}
	if !strings.Contains(records[0].Message, llm.ErrEmptyResponse.Error()) {
		t.Errorf("message = %q", records[0].Message)
	}
}

func TestRunEntryPointOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"Api/Program.cs":    "// api host",
		"Worker/Program.cs": "// worker host",
	}
	model := &fakeModel{}
	records := collect(t, newPipeline(t, model).Run(context.Background(), writeZip(t, dir, files), dir))

	paths := filePaths(records)
	if len(paths) != 3 {
		t.Fatalf("file records = %v, want the three entry point artifacts", paths)
	}
	for _, r := range records {
		if r.Type == models.RecordFile && r.Data.SourcePath != "Api/Program.cs" {
			t.Errorf("%s generated from %s, want Api/Program.cs", r.Data.Path, r.Data.SourcePath)
		}
	}
	for _, p := range model.prompts {
		if strings.Contains(p, "worker host") {
			t.Error("second Program.cs was sent to the model")
		}
	}
}

func TestRunEntryPointFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	model := &fakeModel{fail: func(prompt string) error {
		if strings.Contains(prompt, "Spring Security configuration") {
			return errors.New("model unavailable")
		}
		return nil
	}}
	files := map[string]string{"Program.cs": "var app = builder.Build();"}
	records := collect(t, newPipeline(t, model).Run(context.Background(), writeZip(t, dir, files), dir))

	if len(records) != 2 || records[0].Type != models.RecordError {
		t.Fatalf("records = %+v, want one error then complete", records)
	}
	if !strings.HasPrefix(records[0].Message, "Error converting Program.cs: SecurityConfig.java:") {
		t.Errorf("message = %q", records[0].Message)
	}
	for _, name := range []string{"EZoneApplication.java", "Config/SecurityConfig.java", "Config/WebConfig.java"} {
		if _, err := os.Stat(filepath.Join(dir, OutputDir, filepath.FromSlash(name))); !os.IsNotExist(err) {
			t.Errorf("%s should not be written", name)
		}
	}
}

func TestRunEntryPointWriteFailureRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	// A directory in the way of SecurityConfig.java makes the second write fail.
	blocker := filepath.Join(dir, OutputDir, "Config", "SecurityConfig.java")
	if err := os.MkdirAll(blocker, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{"Program.cs": "var app = builder.Build();"}
	records := collect(t, newPipeline(t, &fakeModel{}).Run(context.Background(), writeZip(t, dir, files), dir))

	if len(records) != 2 || records[0].Type != models.RecordError || records[1].Type != models.RecordComplete {
		t.Fatalf("records = %+v, want one error then complete", records)
	}
	if !strings.HasPrefix(records[0].Message, "Error converting Program.cs:") {
		t.Errorf("message = %q", records[0].Message)
	}
	if _, err := os.Stat(filepath.Join(dir, OutputDir, "EZoneApplication.java")); !os.IsNotExist(err) {
		t.Error("EZoneApplication.java was left behind after a later write failed")
	}

	zr, err := zip.OpenReader(records[1].ArchivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		t.Errorf("archive contains %s without a file record", f.Name)
	}
}

func TestRunKeepsRefusalPhrasesInsideCode(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"Controllers/CartController.cs": `public class CartController : ControllerBase {
    public IActionResult Get() => BadRequest("I am unable to find that cart");
}`,
	}
	const java = "@RestController\npublic class CartController {\n    @GetMapping\n    public ResponseEntity<String> get() {\n        return ResponseEntity.badRequest().body(\"I am unable to find that cart\");\n    }\n}"
	model := llm.GeneratorFunc(func(context.Context, string) (string, error) {
		return "```java\n" + java + "\n```", nil
	})
	records := collect(t, newPipeline(t, model).Run(context.Background(), writeZip(t, dir, files), dir))

	if len(records) != 2 || records[0].Type != models.RecordFile || records[1].Type != models.RecordComplete {
		t.Fatalf("records = %+v, want file then complete", records)
	}
	if records[0].Data.Path != "Controller/CartController.java" || records[0].Data.ConvertedCode != java {
		t.Errorf("file record = %+v", records[0].Data)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	model := llm.GeneratorFunc(func(context.Context, string) (string, error) {
		calls++
		cancel()
		return "public class Generated {}", nil
	})
	ch := newPipeline(t, model).Run(ctx, writeZip(t, dir, sampleProject), dir)
	for rec := range ch {
		if rec.Type == models.RecordComplete {
			t.Fatal("cancelled run should not complete")
		}
	}
	if calls != 1 {
		t.Errorf("model called %d times after cancellation, want 1", calls)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```java\npublic class A {}\n```", "public class A {}"},
		{"  ```xml\n<project/>\n```  ", "<project/>"},
		{"```properties\nserver.port=8080\n```", "server.port=8080"},
		{"plain", "plain"},
		{"```\n```", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
