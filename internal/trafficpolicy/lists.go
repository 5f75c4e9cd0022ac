package trafficpolicy

// Built-in filter lists. These are compiled into the binary; override
// individual lists through Options when a deployment needs different policy.

var defaultStaticExts = []string{
	".css", ".js", ".mjs", ".cjs", ".png", ".jpg", ".jpeg", ".gif", ".svg",
	".webp", ".avif", ".woff", ".woff2", ".ico", ".map", ".ttf", ".eot",
	".otf", ".mp4", ".webm", ".mp3", ".wav", ".ogg", ".pdf",
}

var defaultSkipPaths = []string{
	"/cdn-cgi/", "/_next/data/", "/__nextjs", "/sockjs-node/",
	"/favicon", "/manifest.json", "/robots.txt", "/sitemap",
	"/.well-known/", "/apple-app-site-association",
	"/service-worker", "/sw.js", "/workbox-",
}

var defaultSkipDomains = []string{
	// Analytics & tracking
	"google-analytics.com", "analytics.google.com",
	"mixpanel.com", "mparticle.com",
	"segment.io", "segment.com", "cdn.segment.com",
	"amplitude.com", "heap.io", "heapanalytics.com",
	"posthog.com", "plausible.io", "matomo.org", "stats.wp.com",
	// Ads & attribution
	"doubleclick.net", "googletagmanager.com", "googlesyndication.com",
	"connect.facebook.net", "appsflyer.com", "intentiq.com",
	"id5-sync.com", "33across.com", "btloader.com", "hbwrapper.com",
	"criteo.com", "criteo.net", "taboola.com", "outbrain.com",
	// Payments (third-party, not target APIs)
	"js.stripe.com", "r.stripe.com", "m.stripe.com",
	"paypal.com", "braintreegateway.com", "adyen.com",
	// Support & engagement
	"intercom.io", "zendesk.com", "freshdesk.com", "drift.com", "crisp.chat",
	// UX & monitoring
	"hotjar.com", "clarity.ms", "sentry.io",
	"logrocket.io", "smartlook.com", "mouseflow.com",
	"newrelic.com", "nr-data.net", "fullstory.com",
	"launchdarkly.com", "browser-intake-datadoghq.com",
	"bugsnag.com", "rollbar.com", "raygun.io", "trackjs.com",
	// CDNs
	"cdn.jsdelivr.net", "unpkg.com", "cdnjs.cloudflare.com",
	"ajax.googleapis.com", "code.jquery.com",
	// Consent
	"onetrust.com", "cookielaw.org", "trustarc.com", "evidon.com",
	// Auth providers (third-party SSO, not the target)
	"accounts.google.com", "stack-auth.com",
	"auth0.com", "okta.com", "onelogin.com", "ping.com",
	// Google services
	"fonts.googleapis.com", "fonts.gstatic.com", "maps.googleapis.com",
	"www.gstatic.com", "apis.google.com", "ssl.gstatic.com",
	"adservice.google.com", "translate.googleapis.com",
	"firebaseinstallations.googleapis.com",
	// Social
	"graph.facebook.com", "pixel.facebook.com",
	"platform.twitter.com", "syndication.twitter.com", "analytics.twitter.com",
	"analytics.tiktok.com", "mon.tiktokv.com",
	// Captcha
	"recaptcha.net", "hcaptcha.com", "challenges.cloudflare.com",
	// Attribution SDKs
	"branch.io", "app.link", "adjust.com", "kochava.com",
}

// Telemetry subdomains that hide behind first-party roots.
var telemetrySubdomainPatterns = []string{
	`^metrics[-.]`,
	`^telemetry[-.]`,
	`^beacon[-.]`,
	`^stats[-.]`,
	`^events?[-.]`,
	`^logs?[-.]`,
	`^collector[-.]`,
}

// Path-segment stems that indicate a tracking collector.
var defaultTelemetryStems = []string{
	"track", "beacon", "collect", "telemetry", "analytics",
	"pixel", "impression", "pageview", "heartbeat",
}

// Vendor-specific batched-telemetry path shapes.
var defaultTelemetryPatterns = []string{
	`/b/ss/`,      // Adobe Analytics
	`/i/adsct`,    // Twitter conversion
	`/j/collect`,  // Google Analytics batched
	`/r/collect`,  // Google Analytics batched
	`/batch(/|$)`, // generic event batching
	`/1/events`,   // Amplitude-style
	`/intake(/|$)`,
}

// Path markers that indicate an API endpoint.
var apiPathMarkers = []string{
	"/api/", "/services/", "/v1/", "/v2/", "/v3/", "/graphql",
	"/order", "/quote", "/swap", "/tokens", "/markets",
	"/user", "/auth", "/account", "/profile",
	"/data", "/query", "/mutation", "/rpc",
}

// Exact auth header names (lowercase).
var authHeaderNames = map[string]bool{
	"authorization": true, "x-api-key": true, "api-key": true, "apikey": true,
	"x-auth-token": true, "access-token": true, "x-access-token": true,
	"token": true, "x-token": true, "authtype": true,
	"bearer": true, "jwt": true, "x-jwt": true, "x-jwt-token": true,
	"id-token": true, "id_token": true, "x-id-token": true,
	"refresh-token": true, "x-refresh-token": true,
	"x-apikey": true, "x-key": true, "key": true, "secret": true,
	"x-secret": true, "api-secret": true, "x-api-secret": true,
	"client-secret": true, "x-client-secret": true,
	"session": true, "session-id": true, "sessionid": true,
	"x-session": true, "x-session-id": true, "x-session-token": true,
	"session-token": true, "csrf": true, "x-csrf": true, "x-csrf-token": true,
	"csrf-token": true, "x-xsrf-token": true, "xsrf-token": true,
	"x-oauth-token": true, "oauth-token": true, "x-oauth": true, "oauth": true,
	"x-amz-security-token": true, "x-amz-access-token": true,
	"x-goog-api-key": true, "x-rapidapi-key": true,
	"ocp-apim-subscription-key": true, "x-functions-key": true,
	"x-auth": true, "x-authentication": true, "x-authorization": true,
	"x-user-token": true, "x-app-token": true, "x-client-token": true,
	"x-access-key": true, "x-secret-key": true, "x-signature": true,
	"x-request-signature": true, "signature": true,
}

// Substring patterns that flag an auth-related header.
var authHeaderPatterns = []string{
	"auth", "token", "key", "secret", "bearer", "jwt",
	"session", "credential", "password", "signature", "sign",
	"api-", "apikey", "access", "oauth", "csrf", "xsrf",
}

// Standard browser/proxy headers that are never custom API auth.
var standardHeaders = map[string]bool{
	"x-requested-with": true, "x-forwarded-for": true, "x-forwarded-host": true,
	"x-forwarded-proto": true, "x-real-ip": true, "x-frame-options": true,
	"x-content-type-options": true, "x-xss-protection": true,
	"x-ua-compatible": true, "x-dns-prefetch-control": true,
	"x-download-options": true, "x-permitted-cross-domain-policies": true,
	"x-powered-by": true, "x-request-id": true, "x-correlation-id": true,
	"x-trace-id": true, "x-amz-cf-id": true, "x-amz-cf-pop": true,
	"x-cache": true, "x-cache-hits": true,
}

// Business identifier headers carried alongside credentials.
var contextHeaderNames = map[string]bool{
	"outletid": true, "userid": true, "supplierid": true, "companyid": true,
	"tenantid": true, "organizationid": true, "accountid": true,
	"workspaceid": true, "projectid": true,
	"x-tenant-id": true, "x-org-id": true, "x-workspace-id": true,
}
