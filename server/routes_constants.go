package server

// Loopback route paths. The OAuth providers redirect the browser here, so
// the paths must match the redirect URIs registered with Google and VK.
const (
	RouteGoogleCallback = "/google-oauth-callback"
	RouteVKCallback     = "/vk-oauth-callback"
	RouteHealth         = "/health"
)
