// Package privacy provides the authorization gate of operation calls.
//
// The gate evaluates a chain of rules before any query is executed or any
// statement is planned. Each rule returns a decision:
//
//   - Allow: grants access and stops evaluation
//   - Deny: denies access and stops evaluation
//   - Skip: continues with the next rule
//
// The built-in chain is:
//
//  1. DenyIfNoActor: anonymous calls of non-public operations fail with
//     AUTHENTICATION_REQUIRED.
//  2. The authorizer of the operation behaviour, checking the CRUD flags
//     of the owner transfer type and of the operation relation. A flag that
//     is not granted denies with PERMISSION_DENIED; a missing annotation is
//     a configuration error.
//  3. Signed identifier verification for reference operations, when the
//     gate has a Signer.
//  4. Custom rules given with WithRules.
//
// Example:
//
//	gate := privacy.NewGate(
//	    privacy.WithSigner(signer),
//	    privacy.WithRules(privacy.DenyActorType("Guest")),
//	)
//	ctx = privacy.WithActor(ctx, &privacy.SimpleActor{ID: "u1", TypeName: "Clerk"})
//	grant, err := gate.Authorize(ctx, &privacy.Request{Operation: op})
//
// Internal calls may bypass the chain with an Allow decision context:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
package privacy
