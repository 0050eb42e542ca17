// Package provider declares the upstream model provider abstraction: the wire
// protocol a provider speaks and its base information.
package provider
