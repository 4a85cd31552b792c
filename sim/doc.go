// Package sim provides the dynamic probabilistic material flow simulation
// engine for DPMFA.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - compartment.go: flow compartments, sinks and stocks
//   - transfer.go: transfer coefficient (TC) sources and their per-run draws
//   - release.go: how stocks release stored material over later periods
//   - inflow.go: external inflows into the system
//   - simulator.go: Monte-Carlo runs and the per-period mass balance
//
// # Model
//
// A Model is a set of compartments connected by transfers. Uncertainty is
// expressed as probability distributions (sim/distribution) on inflows and
// TCs. Each run draws every uncertain quantity once; each period is then a
// linear mass balance solved over all compartments, so cycles between flow
// compartments are handled without iteration.
//
// # Sub-packages
//   - sim/distribution/: samplers and lifetime CDFs
//   - sim/modelfile/: YAML model definitions
//   - sim/topology/: graph checks and Graphviz export
//   - sim/summary/: statistics over runs
//   - sim/export/: CSV and JSON output
//   - sim/plot/: time-series plots
package sim
