package system

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	env := "# comment\nAURA_TEST_A=one\nexport AURA_TEST_B=\"two words\"\nbroken line\nAURA_TEST_C=from-file\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)
	t.Setenv("AURA_TEST_C", "already-set")
	for _, k := range []string{"AURA_TEST_A", "AURA_TEST_B"} {
		k := k
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	if err := LoadEnv(".env"); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("AURA_TEST_A"); got != "one" {
		t.Errorf("A = %q", got)
	}
	if got := os.Getenv("AURA_TEST_B"); got != "two words" {
		t.Errorf("B = %q", got)
	}
	if got := os.Getenv("AURA_TEST_C"); got != "already-set" {
		t.Errorf("C = %q, environment should win", got)
	}
}

func TestLoadEnvMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := LoadEnv("no-such.env"); !os.IsNotExist(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateSessionID(t *testing.T) {
	a, b := GenerateSessionID(), GenerateSessionID()
	if a == b {
		t.Fatal("ids repeat")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatal(err)
	}
}
