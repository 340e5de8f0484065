// Package retarget implements the campaign scheduling side of the
// retargeting engine: eligibility selection, weekly cadence advancement,
// budget enforcement, template-driven message construction, and
// engagement-event tracking.
//
// The package depends on repository interfaces defined here and should never
// import from handler code. Repository implementations live in
// repository/postgres/.
package retarget
