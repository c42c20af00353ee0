package testsupport

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

// updateGolden is set via -update to regenerate golden files.
var updateGolden = flag.Bool("update", false, "update golden fixture files")

// Golden compares got (JSON-marshalable) against testdata/golden/<name>.json
// relative to the calling test file. Pass -update to refresh the baseline.
func Golden(t testing.TB, name string, got any) {
	t.Helper()
	path := goldenPath(t, name)
	if *updateGolden {
		writeGolden(t, path, got)
		return
	}
	assertGolden(t, path, got)
}

func goldenPath(t testing.TB, name string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(2)
	if !ok {
		t.Fatalf("testsupport.Golden: could not determine caller file")
	}
	return filepath.Join(filepath.Dir(file), "testdata", "golden", name+".json")
}

func writeGolden(t testing.TB, path string, got any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("testsupport.Golden: mkdir: %v", err)
	}
	raw, err := json.MarshalIndent(got, "", "  ")
	if err != nil {
		t.Fatalf("testsupport.Golden: marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("testsupport.Golden: write: %v", err)
	}
}

func assertGolden(t testing.TB, path string, got any) {
	t.Helper()
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("testsupport.Golden: read %s (run with -update to create it): %v", path, err)
	}

	gotRaw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("testsupport.Golden: marshal got: %v", err)
	}

	var wantVal, gotVal any
	if err := json.Unmarshal(want, &wantVal); err != nil {
		t.Fatalf("testsupport.Golden: unmarshal golden file: %v", err)
	}
	if err := json.Unmarshal(gotRaw, &gotVal); err != nil {
		t.Fatalf("testsupport.Golden: unmarshal got: %v", err)
	}

	if !reflect.DeepEqual(wantVal, gotVal) {
		t.Errorf("golden mismatch for %s:\n got:  %s\n want: %s", path, gotRaw, want)
	}
}
