// Package api exposes the HTTP surface: authentication endpoints, the
// guarded business routes and the websocket sales feed.
package api
