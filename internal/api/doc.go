// Package api exposes external interfaces for submitting goals, inspecting
// their progress, and observing the local agent fleet. It hosts the REST
// server consumed by operators and by the Go SDK.
package api
