package profile

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_EmptyPathHasDefault(t *testing.T) {
	set, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}

	p, ok := set.Get(DefaultName)
	if !ok {
		t.Fatal("default profile missing")
	}
	if p.Username != "demo" || p.ExpectText != "Welcome" {
		t.Errorf("default profile = %+v", p)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  shop:
    entry_path: /shop/login
    username: buyer
    password: secret
    expect_selector: h1
    expect_text: Orders
  bare: {}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !reflect.DeepEqual(set.Names(), []string{"bare", "default", "shop"}) {
		t.Errorf("Names = %v", set.Names())
	}

	shop, _ := set.Get("shop")
	if shop.Name != "shop" || shop.EntryPath != "/shop/login" || shop.Username != "buyer" {
		t.Errorf("shop profile = %+v", shop)
	}

	bare, _ := set.Get("bare")
	if bare.EntryPath != "/" {
		t.Errorf("bare entry path = %q, want /", bare.EntryPath)
	}

	if set.Has("missing") {
		t.Error("Has(missing) = true")
	}
}

func TestLoad_BadFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte(":\n  - not yaml mapping"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
