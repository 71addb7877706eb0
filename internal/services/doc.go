// Package services provides the centralized service registry for
// engramd.
//
// Registry pattern for accessing all core services (memory, channel,
// admin, rate limiter, stores). Use NewRegistry() to create a registry
// with service instances, then accessor methods to retrieve individual
// services.
package services
