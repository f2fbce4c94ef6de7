// Package compute trains the session's feed-forward model on gomlx.
//
// The default build links the pure-Go simplego backend, so real training is
// available anywhere the process runs. Builds with the "xla" tag also link the
// XLA backend used for CUDA devices.
package compute
