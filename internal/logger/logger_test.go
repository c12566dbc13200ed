package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNopLoggerBeforeInit(t *testing.T) {
	// Must not panic when nothing initialized the global logger
	LogInfo("before init", map[string]interface{}{"k": "v"})
	LogError("before init", errors.New("boom"), nil)
}

func TestInitLoggerWritesFile(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	logFile := filepath.Join(t.TempDir(), "nested", "restore.log")
	if err := InitLogger(LoggerConfig{Debug: true, LogFormat: "json", LogFile: logFile}); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}

	LogDebug("partition restored", map[string]interface{}{"partition": 2})
	_ = Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "partition restored") {
		t.Errorf("log file missing entry, got: %s", data)
	}
}

func TestFlattenFields(t *testing.T) {
	flat := flattenFields(map[string]interface{}{"a": 1})
	if len(flat) != 2 || flat[0] != "a" || flat[1] != 1 {
		t.Errorf("unexpected flattened fields: %v", flat)
	}
	if len(flattenFields(nil)) != 0 {
		t.Error("nil map should flatten to nothing")
	}
}
