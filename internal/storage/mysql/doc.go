// Package mysql provides repositories and data access helpers backed by MySQL.
// It encapsulates schema migrations and strongly typed queries for archiving
// the run reports produced by completed goals.
package mysql
