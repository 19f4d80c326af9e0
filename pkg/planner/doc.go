// Package planner turns a datasource manifest into a plan of changes and
// applies it.
//
// ComputePlan lists the datasources of every profile and compares them with
// the declared set: missing datasources are created, and existing ones are
// enabled or disabled when their declared state differs. Creates are checked
// against admission policies while planning, so a plan that would be denied
// is reported before anything is sent to the server.
//
// Apply runs the changes in order, creates first, and stops at the first
// failure.
package planner
