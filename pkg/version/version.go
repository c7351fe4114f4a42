package version

// Version is the application version reported by the API and the User-Agent.
const Version = "v0.3.1"
