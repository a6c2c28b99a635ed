package prof

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
)

type capture struct {
	mu    sync.Mutex
	lines []string
}

func (c *capture) Debug(_ context.Context, msg string, _ ...any) { c.add("debug " + msg) }
func (c *capture) Info(_ context.Context, msg string, _ ...any)  { c.add("info " + msg) }
func (c *capture) Warn(_ context.Context, msg string, kv ...any) {
	if len(kv) == 2 {
		msg += " " + kv[1].(string)
	}
	c.add("warn " + msg)
}
func (c *capture) Error(_ context.Context, _ error, msg string, _ ...any) { c.add("error " + msg) }
func (c *capture) With(...any) log.Logger                                 { return c }
func (c *capture) Sync() error                                            { return nil }

func (c *capture) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, s)
}

func TestStart_Disabled(t *testing.T) {
	var calls int
	c := &capture{}
	ctx := log.WithContext(context.Background(), c)

	stop, err := Start(ctx, Options{
		ServerAddress:        "not a url",
		ProfileMutexFraction: 999,
		OnActive:             func(bool) { calls++ },
	})
	if err != nil || stop == nil {
		t.Fatalf("disabled Start = %p, %v", stop, err)
	}
	stop()
	stop()
	if calls != 0 {
		t.Fatalf("OnActive called %d times while disabled", calls)
	}
	if len(c.lines) != 1 || c.lines[0] != "info pyroscope disabled" {
		t.Fatalf("logs = %q", c.lines)
	}
}

func TestStart_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "empty address", opts: Options{AppName: "bundler"}, wantErr: "invalid server address"},
		{name: "no scheme", opts: Options{AppName: "bundler", ServerAddress: "pyroscope:4040"}, wantErr: "invalid server address"},
		{name: "bad scheme", opts: Options{AppName: "bundler", ServerAddress: "ftp://pyroscope:4040"}, wantErr: "invalid server address"},
		{name: "no host", opts: Options{AppName: "bundler", ServerAddress: "http://"}, wantErr: "invalid server address"},
		{name: "no app", opts: Options{ServerAddress: "http://pyroscope:4040"}, wantErr: "app name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var active bool
			tt.opts.Enabled = true
			tt.opts.OnActive = func(a bool) { active = a }

			stop, err := Start(context.Background(), tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
			if stop == nil {
				t.Fatal("stop must be non-nil on error")
			}
			stop()
			if active {
				t.Fatal("OnActive(true) on a failed start")
			}
		})
	}
}

func TestConfig(t *testing.T) {
	tags := map[string]string{"component": "server"}
	cfg, err := config(context.Background(), log.Nop(), Options{
		AppName:       "bundler",
		ServerAddress: "https://profiles.example.com",
		TenantID:      "team-web",
		Tags:          tags,
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.ApplicationName != "bundler" || cfg.TenantID != "team-web" || cfg.Tags["component"] != "server" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.ProfileTypes) != len(profileTypes) {
		t.Fatalf("profile types = %v", cfg.ProfileTypes)
	}
	if _, ok := cfg.Logger.(agentLogger); !ok {
		t.Fatalf("Logger = %T, want agentLogger", cfg.Logger)
	}
}

func TestAgentLogger(t *testing.T) {
	c := &capture{}
	a := agentLogger{ctx: context.Background(), L: c}
	a.Infof("uploading %d profiles", 3)
	a.Debugf("tick")
	a.Errorf("upload failed: %s", "503")

	want := []string{"debug uploading 3 profiles", "debug tick", "warn pyroscope agent upload failed: 503"}
	if strings.Join(c.lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q, want %q", c.lines, want)
	}
}
