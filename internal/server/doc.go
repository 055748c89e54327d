// Package server implements the HTTP and WebSocket surface of friendchat.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, the JSON API and HTTP handlers. A Server
// owns one room registry, one hub and one session router; nothing is kept in
// package-level state.
package server
