// Package domain contains the core concepts of the PDF export service: the
// render request and its normalization, page settings, the renderer contract
// and the tagged render errors.
// Keep this package free of transport (HTTP) and infrastructure (browser, Redis) concerns.
package domain
