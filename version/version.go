package version

// AppVersion is the panel release string reported by /version and the CLI.
// Overridable at build time: -ldflags "-X github.com/iluobei/miaomiaowu-sub001/version.AppVersion=..."
var AppVersion = "v0.4.0"
