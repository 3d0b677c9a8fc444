package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

var errInvalid = errors.New("port must be positive")

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errInvalid
	}
	s.valid = true
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "library")
	p := writeConfig(t, "name: ${SAMPLE_NAME}\nport: 9090\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "library" || s.Port != 9090 || !s.valid {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	p := writeConfig(t, "port: 0\n")
	var s sample
	if err := Load(p, &s); !errors.Is(err, errInvalid) {
		t.Errorf("err = %v, want %v", err, errInvalid)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := writeConfig(t, "port: [\n")
	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Port: 8080}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" || !s.valid {
		t.Errorf("defaults not kept or not validated: %+v", s)
	}

	bad := sample{}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &bad); !errors.Is(err, errInvalid) {
		t.Errorf("missing file should still validate defaults, err = %v", err)
	}
}

func TestLoadOptional_ExistingFileOverrides(t *testing.T) {
	p := writeConfig(t, "port: 7070\n")
	s := sample{Name: "default", Port: 8080}
	if err := LoadOptional(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" || s.Port != 7070 {
		t.Errorf("loaded = %+v", s)
	}
}
