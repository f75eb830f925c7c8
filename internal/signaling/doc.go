// Package signaling implements the relay's room and connection registries and
// the role-based message router that brokers session negotiation between one
// host and its viewers.
//
// The SDP/ICE payloads are forwarded, never interpreted; media itself never
// touches this service.
package signaling
