package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io/fs"
	"strings"
	"testing"
)

// makeTarGzWithHeader builds a .tar.gz with a single custom header.
func makeTarGzWithHeader(t *testing.T, hdr *tar.Header, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if len(body) > 0 {
		if _, err := tw.Write(body); err != nil {
			t.Fatalf("write body: %v", err)
		}
	}
	_ = tw.Close()
	_ = gw.Close()
	return buf.Bytes()
}

// readWithHash

func TestReadWithHash(t *testing.T) {
	data, sum, err := readWithHash(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("readWithHash: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q", data)
	}
	if sum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("sum = %s", sum)
	}
}

func TestReadWithHash_TooLarge(t *testing.T) {
	if _, _, err := readWithHash(strings.NewReader("hello world"), 5); err == nil {
		t.Fatal("expected size error")
	}
}

// extractTarGzToMem

func TestExtract_Valid(t *testing.T) {
	data := makeTarGz(t, map[string]string{
		"bundles.json":   "{}",
		"./css/a.css":    "a{}",
		"js/nested/b.js": "b()",
	})
	fsys, err := extractTarGzToMem(data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for name, want := range map[string]string{"bundles.json": "{}", "css/a.css": "a{}", "js/nested/b.js": "b()"} {
		got, err := fs.ReadFile(fsys, name)
		if err != nil || string(got) != want {
			t.Errorf("%s = %q, %v; want %q", name, got, err, want)
		}
	}
}

func TestExtract_Rejects(t *testing.T) {
	tests := []struct {
		name string
		hdr  *tar.Header
		body []byte
		want string
	}{
		{"traversal", &tar.Header{Name: "../etc/passwd", Mode: 0644, Size: 1, Typeflag: tar.TypeReg}, []byte("x"), "traversal"},
		{"absolute", &tar.Header{Name: "/etc/passwd", Mode: 0644, Size: 1, Typeflag: tar.TypeReg}, []byte("x"), "absolute"},
		{"symlink", &tar.Header{Name: "link", Linkname: "/etc/passwd", Typeflag: tar.TypeSymlink}, nil, "unsupported"},
		{"oversized", &tar.Header{Name: "big.css", Mode: 0644, Size: maxSingleFile + 1, Typeflag: tar.TypeReg}, nil, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractTarGzToMem(makeTarGzWithHeader(t, tt.hdr, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestExtract_SkipsDirs(t *testing.T) {
	data := makeTarGzWithHeader(t, &tar.Header{Name: "css/", Mode: 0755, Typeflag: tar.TypeDir}, nil)
	fsys, err := extractTarGzToMem(data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	n, _ := countFiles(fsys)
	if n != 0 {
		t.Fatalf("files = %d, want 0", n)
	}
}

func TestExtract_NotGzip(t *testing.T) {
	if _, err := extractTarGzToMem([]byte("plain text")); err == nil {
		t.Fatal("expected gzip error")
	}
}
