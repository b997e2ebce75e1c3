// Package billing exposes the token ledger and subscription reconciler over
// HTTP.
//
// Routes:
//
//	GET  /tokens                  balance, lifetime usage and recent transactions
//	GET  /subscription            the caller's active subscription, if any
//	POST /subscription/switch     switch plan or resume a canceled subscription
//	POST /webhooks/{provider}     signed provider webhooks (stripe, paddle)
//	POST /internal/renewal-sweep  trigger the renewal sweep (shared secret)
//	GET  /health/live, /health/ready
//
// User routes require a bearer token whose subject is the user id. Every
// response uses the JSONResponse envelope.
package billing
