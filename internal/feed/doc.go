// Package feed turns the upstream traffic-message API into typed pages.
//
// Decode parses one raw page, including the upstream's "/Date(<millis><offset>)/" timestamps,
// which are always rendered in Europe/Stockholm regardless of the offset they carry.
// Source wraps a domain.PageFetcher and exposes single-page and full paginated fetches.
package feed
