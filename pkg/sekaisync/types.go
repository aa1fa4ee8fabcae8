// Package sekaisync implements the scheduled master-data/version/app-hash
// synchronization loop that keeps each region's version manifest and master
// tables current, plus the cron scheduler that drives it and the periodic
// cookie refresh.
package sekaisync

// AssetUpdaterServer is one configured downstream notification target for
// the Master Sync Task's asset-change fan-out.
type AssetUpdaterServer struct {
	URL           string `yaml:"url"`
	Authorization string `yaml:"authorization"`
}

// AppHashSource is one configured source the App-Hash Sync Task consults, in
// order, for a fresh {appVersion, appHash} pair.
type AppHashSource struct {
	Type string `yaml:"type"` // "file" or "url"
	Dir  string `yaml:"dir"`
	URL  string `yaml:"url"`
}

// GitConfig controls the optional git push of the master directory after a
// successful Master Sync Task run.
type GitConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}
