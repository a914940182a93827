// Package sim is the per-trial engine of the financial simulator: a hybrid
// discrete-event / continuous-time simulation over calendar time.
//
// A trial is assembled from a handful of small parts:
//
//   - [Timing]: decides when a recurring or one-off event is scheduled
//     ([OneTime], [Interval], [Random], [Seasonal])
//   - [ValueGenerator]: decides how large an event is ([Fixed], [Growing],
//     [DistributionSample], [RateChange], [VariableRateLoan])
//   - [EventBuilder]: pairs one Timing with one ValueGenerator plus static
//     metadata
//   - [ContinuousProcess]: advances a state variable by elapsed time
//     ([Appreciation])
//   - [Simulation]: owns the shared [State] and merges all builders and
//     processes into one time-ordered trajectory
//
// # Example
//
//	s, _ := sim.New("loan", start, end, nil)
//	every, _ := sim.NewInterval(30*24*time.Hour, nil)
//	loan, _ := sim.NewVariableRateLoan(100000, 0.06, 12, "rate")
//	b, _ := sim.NewEventBuilder("mortgage", every, loan, sim.Metadata{{Key: "type", Value: "mortgage"}})
//	s.AddBuilder(b)
//	err := s.Run(ctx)
//	res := s.Result()
//
// # Ordering
//
// At every processed instant the continuous processes are advanced first,
// then every builder scheduled for that instant fires in registration
// order. State patches returned by a generator (see [RateChange]) are
// applied before the next builder fires, so a loan registered after its
// rate source sees the new rate at a shared instant.
//
// # Thread Safety
//
// A Simulation and everything attached to it belong to one goroutine.
// Parallel trials live in package ensemble, each with its own Simulation
// and random source.
package sim
