// Package importer replaces a plan corpus with the content of an archive as
// a single transaction.
//
// An import either commits, leaving the destination holding exactly the
// archive's plan files, or rolls back, leaving the destination as it was
// before the import began. Staging archives and backups live on a scratch
// filesystem that is separate from the destination.
package importer
