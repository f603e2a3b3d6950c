package obslog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetRestores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Set(zap.New(core))
	L().Info("darkchess_log_check", zap.String("k", "v"))
	restore()
	L().Info("darkchess_after_restore")

	if logs.Len() != 1 || logs.All()[0].Message != "darkchess_log_check" {
		t.Fatalf("unexpected entries: %+v", logs.All())
	}
	if Set(nil); L() == nil {
		t.Fatalf("nil must install a no-op logger")
	}
}

func TestInit_JSONFile(t *testing.T) {
	defer Set(L())()
	path := filepath.Join(t.TempDir(), "nested", "dark.log")
	if err := Init(Options{Level: "warn", ToFile: true, File: path, Format: "json"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	L().Info("darkchess_hidden")
	L().Warn("darkchess_visible", zap.Int("n", 3))
	_ = L().Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("want one line above warn, got %q", raw)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("json line: %v", err)
	}
	if entry["n"] != float64(3) {
		t.Fatalf("entry = %v", entry)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_TO_FILE", "TRUE")
	t.Setenv("LOG_FORMAT", " JSON ")
	o := OptionsFromEnv()
	if o.Level != "debug" || !o.ToFile || o.Format != "json" || !o.Console {
		t.Fatalf("options = %+v", o)
	}
	if o.File != filepath.Join("logs", "darkchess.log") {
		t.Fatalf("default file = %q", o.File)
	}
}
