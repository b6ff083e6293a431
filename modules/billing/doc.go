// Package billing is the HTTP surface of the monetization core: the payment
// webhook endpoint, checkout creation, and connected-account management,
// mounted by the host application as a chi sub-router. The host supplies
// authentication via the CurrentUser resolver; this module only decides
// authorization by ownership of the acted-on records.
package billing
