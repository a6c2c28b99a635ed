package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
)

const (
	testSSMParam = "/bundler/content/hash"
	testBucket   = "test-bucket"
	testS3Prefix = "releases"
)

// fakeS3 serves objects from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
	gets    int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.ToString(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

// fakeSSM returns a fixed parameter value.
type fakeSSM struct {
	mu    sync.Mutex
	value *string
	err   error
}

func ssmWithValue(v string) *fakeSSM { return &fakeSSM{value: aws.String(v)} }

func (f *fakeSSM) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: f.value}}, nil
}

func (f *fakeSSM) set(v string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = aws.String(v)
	f.err = err
}

// stubVerifier accepts only the signature "good".
type stubVerifier struct{ calls int }

func (v *stubVerifier) VerifySignature(_ context.Context, _, sig []byte) error {
	v.calls++
	if string(sig) != "good" {
		return errors.New("signature mismatch")
	}
	return nil
}

func newTestLoader(s3c *fakeS3, ssmc *fakeSSM, verifier SignatureVerifier) *Loader {
	l, _ := NewLoader(context.Background(), LoaderOptions{
		Logger:    log.Nop(),
		SSMParam:  testSSMParam,
		S3Bucket:  testBucket,
		S3Prefix:  testS3Prefix,
		Verifier:  verifier,
		S3Client:  s3c,
		SSMClient: ssmc,
	})
	return l
}

// makeTarGz builds a .tar.gz archive in memory from path -> content pairs.
func makeTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0640,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatalf("write tar header %q: %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write tar content %q: %v", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// validRelease is the smallest content that passes Prepare.
func validRelease(body string) map[string]string {
	return map[string]string{
		"bundles.json": `{"bundles":[{"name":"site-css","type":"css","resources":[{"path":"css/site.css"}]}]}`,
		"css/site.css": body,
		"release.json": `{"version":"2026.10.1","commit":"abc123"}`,
	}
}

// putRelease stores a release archive and returns its hash.
func putRelease(t *testing.T, f *fakeS3, files map[string]string) string {
	t.Helper()
	data := makeTarGz(t, files)
	hash := cryptoutil.SHA256Hex(data)
	f.put(testS3Prefix+"/"+hash+".tar.gz", data)
	return hash
}
