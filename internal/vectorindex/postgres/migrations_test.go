package postgres

import (
	"strings"
	"testing"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(128)
	if err != nil {
		t.Fatalf("loadMigrations returned error: %v", err)
	}
	if len(migrations) == 0 || migrations[0].version != "001_faces.sql" {
		t.Fatalf("unexpected migrations %v", migrations)
	}

	for i, m := range migrations {
		if strings.Contains(m.sql, dimPlaceholder) {
			t.Errorf("%s still contains %s", m.version, dimPlaceholder)
		}
		if i > 0 && migrations[i-1].version >= m.version {
			t.Errorf("migrations out of order: %s before %s", migrations[i-1].version, m.version)
		}
	}
	if !strings.Contains(migrations[0].sql, "vector(128)") {
		t.Errorf("expected vector(128) in %s", migrations[0].version)
	}
}
