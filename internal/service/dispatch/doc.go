// Package dispatch implements the delivery side of the retargeting engine:
// claiming due campaigns, sending them through the channel senders with a
// bounded worker pool and explicit retry policies, and requeueing failed
// campaigns for another attempt.
package dispatch
