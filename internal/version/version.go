package version

// Version is the current version of livescreen.
// Release builds override it with:
//   go build -ldflags="-X 'github.com/AgentIsComing/live-screen-share-releases/internal/version.Version=v1.0.0'"
var Version = "dev"
