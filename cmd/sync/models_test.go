package sync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const productYAML = `
name: Product
table: products
fields:
  - name: name
    type: string
`

const orderYAML = `
name: Order
table: orders
temporal:
  strategy: scd2
fields:
  - name: total
    type: decimal
    precision: 10
    scale: 2
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadModels(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_product.yaml", productYAML)
	writeFile(t, dir, "a_order.yml", orderYAML)
	writeFile(t, dir, "notes.txt", "not a model")

	models, err := loadModels([]string{dir})
	if err != nil {
		t.Fatalf("loadModels() error = %v", err)
	}
	var names []string
	for _, m := range models {
		names = append(names, m.ModelName())
	}
	// *.yaml files are collected before *.yml files
	if got := strings.Join(names, ","); got != "Product,Order" {
		t.Errorf("loadModels() = %s, want Product,Order", got)
	}
}

func TestLoadModelsErrors(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "product.yaml", productYAML)
	second := writeFile(t, dir, "product_copy.yaml", productYAML)

	tests := []struct {
		name    string
		paths   []string
		wantErr string
	}{
		{"missing path", []string{filepath.Join(dir, "nope.yaml")}, "failed to read model path"},
		{"empty directory", []string{t.TempDir()}, "no model files found"},
		{"duplicate model", []string{first, second}, "defined in both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadModels(tt.paths)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("loadModels() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
