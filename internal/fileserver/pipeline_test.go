package fileserver

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name string, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestAliasFixedPoint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "static/logo-static_128x128.ico", "ICOBYTES")

	fs, err := NewFilesystemProducer(dir, []string{"/pages/.*", "/static/.*"})
	if err != nil {
		t.Fatalf("NewFilesystemProducer: %v", err)
	}

	p := NewPipeline(0)
	p.Aliases().AddLiteral("/favicon.ico", "/static/logo-static_128x128.ico")
	p.AddProducer(fs)

	blob, ok, err := p.Get("/favicon.ico")
	if err != nil || !ok {
		t.Fatalf("Get(/favicon.ico) ok=%v err=%v", ok, err)
	}
	if string(blob.Data) != "ICOBYTES" {
		t.Fatalf("Data = %q, want ICOBYTES", blob.Data)
	}
	if blob.ContentType != "image/vnd.microsoft.icon" {
		t.Fatalf("ContentType = %q", blob.ContentType)
	}
}

func TestAliasRegexBackreference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pages/welcome.html", "<html>welcome</html>")

	fs, err := NewFilesystemProducer(dir, []string{"/pages/.*"})
	if err != nil {
		t.Fatalf("NewFilesystemProducer: %v", err)
	}

	p := NewPipeline(0)
	p.Aliases().AddRegex(regexp.MustCompile(`^/([a-zA-Z0-9_-]+)\.html$`), `/pages/\1.html`)
	p.AddProducer(fs)

	blob, ok, err := p.Get("/welcome.html")
	if err != nil || !ok {
		t.Fatalf("Get(/welcome.html) ok=%v err=%v", ok, err)
	}
	if string(blob.Data) != "<html>welcome</html>" {
		t.Fatalf("Data = %q", blob.Data)
	}
}

func TestAliasCycleDetected(t *testing.T) {
	p := NewPipeline(0)
	p.Aliases().AddLiteral("/a", "/b")
	p.Aliases().AddLiteral("/b", "/a")

	if _, _, err := p.Get("/a"); err != ErrAliasCycle {
		t.Fatalf("Get(/a) err = %v, want ErrAliasCycle", err)
	}
}

func TestFilesystemWhitelistRejectsOtherPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secret.txt", "nope")

	fs, err := NewFilesystemProducer(dir, []string{"/pages/.*", "/static/.*"})
	if err != nil {
		t.Fatalf("NewFilesystemProducer: %v", err)
	}
	p := NewPipeline(0)
	p.AddProducer(fs)

	_, ok, err := p.Get("/secret.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected /secret.txt to be declined")
	}
}

func TestSyntheticProducerServesRegisteredContent(t *testing.T) {
	synth := NewSyntheticProducer()
	synth.Set("/static/version.js", []byte(`this._instantVersion_ = {version:"1.0.0"};`))

	p := NewPipeline(0)
	p.AddProducer(synth)

	blob, ok, err := p.Get("/static/version.js")
	if err != nil || !ok {
		t.Fatalf("Get ok=%v err=%v", ok, err)
	}
	if blob.ContentType != "application/javascript; charset=utf-8" {
		t.Fatalf("ContentType = %q", blob.ContentType)
	}
}

func TestCacheSharesConcurrentResolution(t *testing.T) {
	calls := 0
	p := NewPipeline(time.Hour)
	p.AddProducer(ProducerFunc(func(path string) ([]byte, bool, error) {
		calls++
		time.Sleep(10 * time.Millisecond) // keep the resolution in flight
		return []byte("x"), true, nil
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := p.Get("/x"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Get: %v", err)
	}
	if calls != 1 {
		t.Fatalf("producer invoked %d times, want 1", calls)
	}
}

func TestCacheExpiresAfterMaxAge(t *testing.T) {
	calls := 0
	p := NewPipeline(10 * time.Millisecond)
	p.AddProducer(ProducerFunc(func(path string) ([]byte, bool, error) {
		calls++
		return []byte("x"), true, nil
	}))

	if _, _, err := p.Get("/x"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, _, err := p.Get("/x"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 2 {
		t.Fatalf("producer invoked %d times, want 2", calls)
	}
}
