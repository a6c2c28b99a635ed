package bundle

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func testFS(manifest string) fstest.MapFS {
	return fstest.MapFS{
		ManifestFile:      &fstest.MapFile{Data: []byte(manifest)},
		"css/reset.css":   &fstest.MapFile{Data: []byte("html{margin:0}")},
		"css/site.css":    &fstest.MapFile{Data: []byte("body{color:red}")},
		"js/app.js":       &fstest.MapFile{Data: []byte("console.log('app')")},
		"js/vendor.mjs":   &fstest.MapFile{Data: []byte("export const x = 1")},
		"css/dir/.keep":   &fstest.MapFile{Data: []byte("")},
		"img/logo.png":    &fstest.MapFile{Data: []byte("PNG")},
		"css/partial.txt": &fstest.MapFile{Data: []byte("nope")},
	}
}

const validManifest = `{
  "bundles": [
    {"name": "site-js", "type": "js", "resources": [{"path": "js/app.js"}, {"path": "js/vendor.mjs"}]},
    {"name": "site-css", "type": "css", "resources": [{"path": "/css/reset.css"}, {"path": "css/site.css"}],
     "filters": ["css-urls"], "minifier": "whitespace",
     "vary": {"provider": "language", "options": {"supported": "en,fr"}}}
  ]
}`

func wantManifestErr(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("error %v is not ErrInvalidManifest", err)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// Load

func TestLoad_Valid(t *testing.T) {
	bundles, err := Load(testFS(validManifest))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("len = %d, want 2", len(bundles))
	}
	// sorted by name
	if bundles[0].Name != "site-css" || bundles[1].Name != "site-js" {
		t.Fatalf("order = %q, %q", bundles[0].Name, bundles[1].Name)
	}

	css := bundles[0]
	if css.Type != TypeCSS {
		t.Fatalf("Type = %q", css.Type)
	}
	if got := css.ResourcePaths(); got[0] != "css/reset.css" || got[1] != "css/site.css" {
		t.Fatalf("resource paths = %v (leading slash should be trimmed)", got)
	}
	if css.VaryProvider() != "language" {
		t.Fatalf("VaryProvider = %q", css.VaryProvider())
	}
	if bundles[1].VaryProvider() != "none" {
		t.Fatalf("default VaryProvider = %q, want none", bundles[1].VaryProvider())
	}
	if len(css.Version) != 16 {
		t.Fatalf("Version = %q, want 16 hex chars", css.Version)
	}
}

func TestLoad_NoManifest(t *testing.T) {
	_, err := Load(fstest.MapFS{})
	if !errors.Is(err, ErrNoManifest) {
		t.Fatalf("err = %v, want ErrNoManifest", err)
	}
}

func TestLoad_VersionDeterministic(t *testing.T) {
	a, err := Load(testFS(validManifest))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Load(testFS(validManifest))
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i].Version != b[i].Version {
			t.Fatalf("bundle %s version differs across loads: %s vs %s", a[i].Name, a[i].Version, b[i].Version)
		}
	}
}

func TestLoad_VersionChangesWithContent(t *testing.T) {
	fs1 := testFS(validManifest)
	fs2 := testFS(validManifest)
	fs2["css/site.css"] = &fstest.MapFile{Data: []byte("body{color:blue}")}

	a, _ := Load(fs1)
	b, _ := Load(fs2)
	if a[0].Version == b[0].Version {
		t.Fatal("css version should change when a resource changes")
	}
	if a[1].Version != b[1].Version {
		t.Fatal("js version should not change when only css changes")
	}
}

func TestLoad_VersionChangesWithOrder(t *testing.T) {
	m1 := `{"bundles":[{"name":"b","type":"css","resources":[{"path":"css/reset.css"},{"path":"css/site.css"}]}]}`
	m2 := `{"bundles":[{"name":"b","type":"css","resources":[{"path":"css/site.css"},{"path":"css/reset.css"}]}]}`
	a, _ := Load(testFS(m1))
	b, _ := Load(testFS(m2))
	if a[0].Version == b[0].Version {
		t.Fatal("resource order must affect the version")
	}
}

func TestLoad_VersionChangesWithPipeline(t *testing.T) {
	const base = `{"name":"b","type":"css","resources":[{"path":"css/site.css"}],
	  "filters":["css-urls","params"],"minifier":"none",
	  "vary":{"provider":"language","options":{"supported":"en,fr","strict":"false"}}}`
	version := func(t *testing.T, b string) string {
		t.Helper()
		got, err := Load(testFS(`{"bundles":[` + b + `]}`))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return got[0].Version
	}
	want := version(t, base)

	tests := []struct {
		name string
		from string
		to   string
	}{
		{"minifier", `"minifier":"none"`, `"minifier":"whitespace"`},
		{"filter removed", `"filters":["css-urls","params"]`, `"filters":["css-urls"]`},
		{"filter order", `"filters":["css-urls","params"]`, `"filters":["params","css-urls"]`},
		{"provider", `"provider":"language"`, `"provider":"langs"`},
		{"option value", `"supported":"en,fr"`, `"supported":"de,en"`},
		{"option added", `"strict":"false"`, `"strict":"false","fallback":"en"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := strings.Replace(base, tt.from, tt.to, 1)
			if changed == base {
				t.Fatalf("replacement %q not found", tt.from)
			}
			if got := version(t, changed); got == want {
				t.Fatalf("version %s unchanged after %s change", got, tt.name)
			}
		})
	}

	// option order in the JSON object does not matter
	reordered := strings.Replace(base, `"supported":"en,fr","strict":"false"`, `"strict":"false","supported":"en,fr"`, 1)
	if got := version(t, reordered); got != want {
		t.Fatalf("option order changed version: %s vs %s", got, want)
	}
}

func TestSaltVersion(t *testing.T) {
	if SaltVersion("0123456789abcdef", "") != "0123456789abcdef" {
		t.Fatal("empty salt must keep the version")
	}
	a := SaltVersion("0123456789abcdef", "css-urls=prefix:/static")
	b := SaltVersion("0123456789abcdef", "css-urls=prefix:/assets")
	if a == b || len(a) != 16 {
		t.Fatalf("salted versions %q %q", a, b)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
	}{
		{"malformed json", `{"bundles": [`, "invalid manifest"},
		{"unknown field", `{"bundles":[{"name":"a","type":"css","resources":[{"path":"css/site.css"}],"bogus":1}]}`, "bogus"},
		{"empty", `{"bundles": []}`, "no bundles defined"},
		{"null bundle", `{"bundles": [null]}`, "is null"},
		{"bad name", `{"bundles":[{"name":"Site CSS","type":"css","resources":[{"path":"css/site.css"}]}]}`, "invalid bundle name"},
		{"bad type", `{"bundles":[{"name":"a","type":"less","resources":[{"path":"css/site.css"}]}]}`, "unknown type"},
		{"no resources", `{"bundles":[{"name":"a","type":"css","resources":[]}]}`, "no resources"},
		{"traversal", `{"bundles":[{"name":"a","type":"css","resources":[{"path":"css/../css/site.css"}]}]}`, "unsafe path"},
		{"empty path", `{"bundles":[{"name":"a","type":"css","resources":[{"path":""}]}]}`, "unsafe path"},
		{"wrong ext", `{"bundles":[{"name":"a","type":"css","resources":[{"path":"js/app.js"}]}]}`, "does not match type"},
		{"txt in css", `{"bundles":[{"name":"a","type":"css","resources":[{"path":"css/partial.txt"}]}]}`, "does not match type"},
		{"missing file", `{"bundles":[{"name":"a","type":"css","resources":[{"path":"css/missing.css"}]}]}`, "css/missing.css"},
		{"duplicate", `{"bundles":[{"name":"a","type":"css","resources":[{"path":"css/site.css"}]},{"name":"a","type":"css","resources":[{"path":"css/site.css"}]}]}`, "duplicate bundle name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(testFS(tt.manifest))
			wantManifestErr(t, err, tt.want)
		})
	}
}

func TestLoad_TooLarge(t *testing.T) {
	big := strings.Repeat(" ", maxManifestSize+10)
	_, err := Load(testFS(big))
	wantManifestErr(t, err, "exceeds")
}

// Type

func TestType_ContentTypeAndExt(t *testing.T) {
	tests := []struct {
		typ  Type
		ct   string
		ext  string
		good bool
	}{
		{TypeCSS, "text/css; charset=utf-8", ".css", true},
		{TypeJS, "text/javascript; charset=utf-8", ".js", true},
		{Type("svg"), "application/octet-stream", "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.ContentType(); got != tt.ct {
				t.Errorf("ContentType = %q, want %q", got, tt.ct)
			}
			if got := tt.typ.Ext(); got != tt.ext {
				t.Errorf("Ext = %q, want %q", got, tt.ext)
			}
			if got := tt.typ.Valid(); got != tt.good {
				t.Errorf("Valid = %v, want %v", got, tt.good)
			}
		})
	}
}
