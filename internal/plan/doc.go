// Package plan implements the dependency-ordered plan execution engine used
// by the task agent. A Builder turns an untrusted step list into a validated
// Plan, and a Runner executes the Plan wave by wave, dispatching ready steps
// concurrently to an external StepExecutor and aggregating the outcome into
// a structured Report.
package plan
