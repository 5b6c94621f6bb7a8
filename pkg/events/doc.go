// Package events provides an in-process, best-effort publish/subscribe
// broker used to observe tracker lifecycle transitions (worker join/death,
// rendezvous completion) without coupling the rendezvous code paths to
// any particular observer. Delivery is not guaranteed: a slow subscriber
// drops events rather than blocking publishers.
package events
