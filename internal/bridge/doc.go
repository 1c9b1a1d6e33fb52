// Package bridge defines the contract between the manager and device
// adapters, plus the bindings that tie a model code to an adapter.
//
// An adapter is used in two roles. The exemplar, built once per binding
// per discovery session, finds devices and reports each one as a new
// instance through the discovered callback. An instance is bound to
// exactly one Thing at a time; it reports state through the pulled
// callback and accepts desired state through Push.
//
// Optional behaviour (Ignorer, Disconnecter) is expressed as separate
// interfaces and resolved once into a Capabilities value.
package bridge
