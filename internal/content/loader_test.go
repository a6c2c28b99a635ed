package content

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
)

// NewLoader validation

func TestNewLoader_MissingSSMParam(t *testing.T) {
	_, err := NewLoader(context.Background(), LoaderOptions{S3Bucket: "test-bucket"})
	if err == nil {
		t.Fatal("expected error for missing SSMParam")
	}
}

func TestNewLoader_MissingS3Bucket(t *testing.T) {
	_, err := NewLoader(context.Background(), LoaderOptions{SSMParam: "/app/content/hash"})
	if err == nil {
		t.Fatal("expected error for missing S3Bucket")
	}
}

func TestNewLoader_InjectedClients(t *testing.T) {
	l := newTestLoader(newFakeS3(), ssmWithValue(""), nil)
	if l == nil || l.s3Client == nil || l.ssmClient == nil {
		t.Fatal("loader with injected clients not built")
	}
}

// s3Key

func TestLoader_s3Key(t *testing.T) {
	tests := []struct{ prefix, want string }{
		{"content/releases", "content/releases/abc.tar.gz"},
		{"content/releases/", "content/releases/abc.tar.gz"},
		{"", "abc.tar.gz"},
	}
	for _, tt := range tests {
		l := &Loader{opts: LoaderOptions{S3Prefix: tt.prefix}}
		if got := l.s3Key("abc"); got != tt.want {
			t.Errorf("s3Key(prefix=%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

// FetchCurrentBundleHash

func TestFetchCurrentBundleHash(t *testing.T) {
	valid := strings.Repeat("ab", 32)
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"plain", valid, valid, false},
		{"prefixed", "sha256:" + valid, valid, false},
		{"whitespace and case", "  " + strings.ToUpper(valid) + "\n", valid, false},
		{"empty", "  ", "", true},
		{"short", "abc", "", true},
		{"not hex", strings.Repeat("zz", 32), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoader(newFakeS3(), ssmWithValue(tt.value), nil)
			got, err := l.FetchCurrentBundleHash(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchCurrentBundleHash: %v", err)
			}
			if got != tt.want {
				t.Fatalf("hash = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchCurrentBundleHash_SSMError(t *testing.T) {
	ssmc := &fakeSSM{err: errors.New("throttled")}
	l := newTestLoader(newFakeS3(), ssmc, nil)
	if _, err := l.FetchCurrentBundleHash(context.Background()); err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchCurrentBundleHash_NilValue(t *testing.T) {
	l := newTestLoader(newFakeS3(), &fakeSSM{}, nil)
	if _, err := l.FetchCurrentBundleHash(context.Background()); err == nil {
		t.Fatal("expected error for nil parameter value")
	}
}

// LoadHash

func TestLoadHash_Valid(t *testing.T) {
	s3c := newFakeS3()
	hash := putRelease(t, s3c, validRelease("body{}"))
	l := newTestLoader(s3c, ssmWithValue(hash), nil)

	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Meta.SHA256 != hash || snap.Meta.Source != SourceS3 || snap.Meta.Signed {
		t.Fatalf("meta = %+v", snap.Meta)
	}
	data, err := fs.ReadFile(snap.FS, "css/site.css")
	if err != nil || string(data) != "body{}" {
		t.Fatalf("css/site.css = %q, %v", data, err)
	}
	if snap.Catalog != nil {
		t.Fatal("LoadHash must not compile, that is Prepare's job")
	}
}

func TestLoadHash_ChecksumMismatch(t *testing.T) {
	s3c := newFakeS3()
	hash := putRelease(t, s3c, validRelease("body{}"))
	wrong := strings.Repeat("0", 64)
	s3c.put(testS3Prefix+"/"+wrong+".tar.gz", s3c.objects[testS3Prefix+"/"+hash+".tar.gz"])

	l := newTestLoader(s3c, ssmWithValue(wrong), nil)
	if _, err := l.LoadHash(context.Background(), wrong); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("err = %v, want checksum mismatch", err)
	}
}

func TestLoadHash_Missing(t *testing.T) {
	l := newTestLoader(newFakeS3(), ssmWithValue(""), nil)
	if _, err := l.LoadHash(context.Background(), strings.Repeat("a", 64)); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestLoadHash_Signature(t *testing.T) {
	tests := []struct {
		name    string
		sig     *string
		wantErr bool
	}{
		{"valid", strPtr("good"), false},
		{"invalid", strPtr("forged"), true},
		{"missing", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s3c := newFakeS3()
			hash := putRelease(t, s3c, validRelease("body{}"))
			if tt.sig != nil {
				s3c.put(testS3Prefix+"/"+hash+".tar.gz.sig", []byte(*tt.sig))
			}
			v := &stubVerifier{}
			l := newTestLoader(s3c, ssmWithValue(hash), v)

			snap, err := l.LoadHash(context.Background(), hash)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected signature error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadHash: %v", err)
			}
			if !snap.Meta.Signed || v.calls != 1 {
				t.Fatalf("signed = %v, verifier calls = %d", snap.Meta.Signed, v.calls)
			}
		})
	}
}

func strPtr(s string) *string { return &s }
