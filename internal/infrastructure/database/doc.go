// Package database opens the registry's SQLite file and applies its schema.
//
// Connections enforce foreign keys and start transactions with
// BEGIN IMMEDIATE. The pool holds a single connection. Statements use ?
// placeholders.
//
//	db, err := database.Open(database.Config{Path: "data/registry.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx)
package database
