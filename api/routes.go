package api

// Backend route constants
const (
	// Auth Routes - Telegram credential exchange
	RouteTelegramAuth       = "/auth/telegram"
	RouteTelegramWebAppAuth = "/auth/telegram/webapp"

	// Auth Routes - Third-party account linking
	RouteGoogleAuthURL  = "/auth/google/url"
	RouteGoogleCallback = "/auth/google/callback"
	RouteVKCallback     = "/auth/vk/callback"

	// User Routes
	RouteUserProfile = "/user/profile"
	RouteUserReports = "/user/reports"

	// Upload Routes
	RouteUploadReport = "/upload/report"
	RouteReportStatus = "/upload/report/%d/status"

	// Sheets Routes
	RouteSheetsConnect    = "/sheets/connect"
	RouteSheetsInfo       = "/sheets/info"
	RouteSheetsDisconnect = "/sheets/disconnect"

	// VK Ads Routes
	RouteVKCampaigns = "/vk_ads/campaigns"
)
