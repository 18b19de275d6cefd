// Package peers provides the shared HTTP/JSON calling convention used to
// reach the external collaborator services (orchestrator, tool registry,
// memory service and AI runtime). It centralises timeout handling and the
// bounded retry policy so individual clients stay thin.
package peers
