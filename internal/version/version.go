package version

// Version is the build-time identifier reported in trace resources and
// diagnostic output. Overridden at build time with -ldflags.
var Version = "dev"
