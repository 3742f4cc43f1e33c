// Package dynamo provides the numerical primitives shared by the integrators
// and the reaction models.
//
//   - [State]: vector of metabolite concentrations (mM)
//   - [System]: ODE right-hand side (dX/dt = f(X, u, t))
//   - [FluxSystem]: a System that also reports per-reaction fluxes
//   - [Integrator], [AdaptiveIntegrator]: single-step solvers
//
// Systems are evaluated from a single goroutine; none of the types here are
// safe for concurrent mutation.
package dynamo
