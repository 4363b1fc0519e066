// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files follow the naming convention {version}_{description}.sql
// (e.g. "001_initial_schema.sql") and are read from any fs.FS, which lets the
// storage package ship its schema as an embedded file system. Applied versions
// are tracked in a schema_migrations table together with the file checksum so
// edits to an already applied file are detected.
//
// Example usage:
//
//	manager := NewManager(NewFileScanner(schemaFS), NewSQLiteExecutor(db), ".", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
