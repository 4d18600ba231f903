package memory

import (
	"go/build"
	"strings"
	"testing"
)

var allowedImports = map[string]struct{}{
	"inventario/internal/infra/persistence": {},
	"inventario/pkg/domain":                 {},
}

func TestImportsArePersistenceOrStdlib(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if !strings.HasPrefix(imp, "inventario/") {
			continue
		}
		if _, ok := allowedImports[imp]; ok {
			continue
		}
		t.Fatalf("unexpected dependency: %s", imp)
	}
}
