// Package ratelimit is per-ip rate limiting middleware for the bundle listener.
//
// Every bundle miss costs a combine and minify pass, so a single client
// cycling through variance values can keep the builders busy. The limiter
// caps requests per ip and the number of ips tracked at once.
//
// State is in memory and per instance. Distributed floods need upstream
// filtering at the load balancer or CDN.
package ratelimit
