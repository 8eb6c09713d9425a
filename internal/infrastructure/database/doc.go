// Package database provides SQLite connection management and schema
// migrations for Lemonade Core.
//
// # Features
//
//   - WAL mode with busy-timeout and foreign-key pragmas
//   - Startup readiness probing with exponential backoff
//   - Embedded, versioned SQL migrations (up/down)
//   - Health checks for the /health endpoint
//
// # Usage
//
//	db, err := database.Open(ctx, database.Config{Path: "data/lemonade.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
